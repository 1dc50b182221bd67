package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestFromDescription(t *testing.T) {
	s := newSuggester(defaultKeywords, false)

	tests := []struct {
		name        string
		description string
		want        []string
	}{
		{"keyword match", "weekly planning meeting", []string{"Meeting"}},
		{"multiple tags", "incident review with the team", []string{"Review", "Support"}},
		{"case insensitive", "STANDUP notes", []string{"Meeting"}},
		{"colon keyword", "1:1 with manager", []string{"Meeting"}},
		{"whole words only", "reviewing architecture", nil},
		{"no match", "writing code", nil},
		{"empty description", "", nil},
		{"deduplicated", "standup sync meeting", []string{"Meeting"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Suggest(tt.description, ""))
		})
	}
}

func TestSuggestProjectName(t *testing.T) {
	s := newSuggester(defaultKeywords, true)
	assert.Equal(t, []string{"Acme Website", "Meeting"}, s.Suggest("kickoff meeting", "Acme Website"))
	assert.Equal(t, []string{"Acme Website"}, s.Suggest("writing code", "Acme Website"))

	off := newSuggester(defaultKeywords, false)
	assert.Nil(t, off.Suggest("writing code", "Acme Website"))
}

func TestLoadKeywords(t *testing.T) {
	t.Run("built-in default", func(t *testing.T) {
		table, err := loadKeywords("")
		require.NoError(t, err)
		assert.Contains(t, table, "Meeting")
	})

	t.Run("custom file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keywords.yaml")
		require.NoError(t, os.WriteFile(path, []byte("Billing:\n  - invoice\n  - quote\n"), 0o600))
		table, err := loadKeywords(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"invoice", "quote"}, table["Billing"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadKeywords(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty mapping", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
		_, err := loadKeywords(path)
		assert.Error(t, err)
	})
}
