package rules

import (
	"encoding/json"
	"sort"
	"time"
)

// Combinators for multi-condition rules.
const (
	CombinatorAnd = "AND"
	CombinatorOr  = "OR"
)

// Condition types.
const (
	CondDescriptionContains = "descriptionContains"
	CondDescriptionEquals   = "descriptionEquals"
	CondHasTag              = "hasTag"
	CondProjectIDEquals     = "projectIdEquals"
	CondIsBillable          = "isBillable"
	CondField               = "field"
	CondExpression          = "expression"
)

// Condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

// Action types form the executor allowlist; anything else is rejected at
// validation time.
const (
	ActionAddTag           = "add_tag"
	ActionRemoveTag        = "remove_tag"
	ActionSetDescription   = "set_description"
	ActionSetBillable      = "set_billable"
	ActionSetProjectByID   = "set_project_by_id"
	ActionSetProjectByName = "set_project_by_name"
	ActionSetTaskByID      = "set_task_by_id"
	ActionSetTaskByName    = "set_task_by_name"
	ActionOpenAPICall      = "openapi_call"
)

// Priority bounds. Rules are evaluated highest priority first.
const (
	MinPriority = -100
	MaxPriority = 100
)

// Condition is one predicate over the webhook payload.
//
// Field is only used by the generic "field" type and holds a dotted payload
// path. Expression is only used by the "expression" type and holds an
// expr-lang program evaluated against the payload.
type Condition struct {
	Type       string   `json:"type"`
	Operator   string   `json:"operator,omitempty"`
	Field      string   `json:"field,omitempty"`
	Value      string   `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
	Expression string   `json:"expression,omitempty"`
}

// Action is one effect applied when a rule matches. Params values may
// contain {{dotted.path}} placeholders resolved against the payload.
type Action struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Rule reacts to one webhook event type in one workspace.
type Rule struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspaceId"`
	Name        string      `json:"name"`
	Event       string      `json:"event"`
	Enabled     bool        `json:"enabled"`
	Priority    int         `json:"priority"`
	Combinator  string      `json:"combinator"`
	Conditions  []Condition `json:"conditions"`
	Actions     []Action    `json:"actions"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// UnmarshalJSON decodes a rule document with enabled defaulting to true
// when the field is absent.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias Rule
	aux := struct {
		Enabled *bool `json:"enabled"`
		*alias
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

// SortByPriority orders rules highest priority first; ties keep a stable
// name order so evaluation is deterministic.
func SortByPriority(list []*Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		return list[i].Name < list[j].Name
	})
}
