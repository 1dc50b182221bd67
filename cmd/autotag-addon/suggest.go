package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultKeywords maps tag names to the description keywords that imply
// them. Matching is case-insensitive on whole words.
var defaultKeywords = map[string][]string{
	"Meeting":  {"meeting", "standup", "sync", "1:1", "retro", "planning"},
	"Review":   {"review", "pr", "feedback"},
	"Support":  {"support", "incident", "outage", "hotfix"},
	"Research": {"research", "spike", "investigate", "poc"},
	"Admin":    {"invoice", "expenses", "timesheet", "admin"},
}

// suggester derives tag names for a time entry from its description and
// project name.
type suggester struct {
	keywords     map[string][]string // tag -> keywords, lower case
	tagByProject bool
}

func newSuggester(keywords map[string][]string, tagByProject bool) *suggester {
	lowered := make(map[string][]string, len(keywords))
	for tag, words := range keywords {
		ws := make([]string, 0, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				ws = append(ws, w)
			}
		}
		if len(ws) > 0 {
			lowered[tag] = ws
		}
	}
	return &suggester{keywords: lowered, tagByProject: tagByProject}
}

// loadKeywords reads a tag -> keywords YAML mapping, falling back to the
// built-in table when no file is given.
func loadKeywords(path string) (map[string][]string, error) {
	if path == "" {
		return defaultKeywords, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyword file: %w", err)
	}
	var table map[string][]string
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parsing keyword file %s: %w", path, err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("keyword file %s defines no tags", path)
	}
	return table, nil
}

// Suggest returns the tag names implied by the description and, when
// project tagging is on, the project name itself. Results are sorted and
// deduplicated.
func (s *suggester) Suggest(description, projectName string) []string {
	words := tokenize(description)
	seen := make(map[string]bool)
	var out []string
	for tag, keywords := range s.keywords {
		for _, kw := range keywords {
			if words[kw] {
				if !seen[tag] {
					seen[tag] = true
					out = append(out, tag)
				}
				break
			}
		}
	}
	if s.tagByProject {
		if p := strings.TrimSpace(projectName); p != "" && !seen[p] {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// tokenize splits a description into a lower-cased word set. Punctuation
// separates words except ":" so keywords like "1:1" survive.
func tokenize(description string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ':':
			return false
		}
		return true
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[strings.Trim(f, ":")] = true
		set[f] = true
	}
	return set
}
