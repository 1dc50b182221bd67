package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockify/addon-sdk-go/pkg/payload"
)

func entryPayload(t *testing.T) payload.Payload {
	t.Helper()
	p, err := payload.Parse([]byte(`{
		"id": "te-1",
		"workspaceId": "ws-1",
		"description": "Fix login bug for ACME",
		"projectId": "proj-9",
		"billable": true,
		"tags": [{"id": "t-1", "name": "backend"}, {"id": "t-2", "name": "Urgent"}]
	}`))
	require.NoError(t, err)
	return p
}

func TestConditionTypes(t *testing.T) {
	p := entryPayload(t)
	e := NewEvaluator()

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"description contains", Condition{Type: CondDescriptionContains, Value: "login"}, true},
		{"description contains case-insensitive", Condition{Type: CondDescriptionContains, Value: "ACME"}, true},
		{"description contains miss", Condition{Type: CondDescriptionContains, Value: "payroll"}, false},
		{"description equals miss", Condition{Type: CondDescriptionEquals, Value: "login"}, false},
		{"project equals", Condition{Type: CondProjectIDEquals, Value: "proj-9"}, true},
		{"project not equals", Condition{Type: CondProjectIDEquals, Operator: OpNotEquals, Value: "proj-9"}, false},
		{"billable default true", Condition{Type: CondIsBillable}, true},
		{"billable explicit false", Condition{Type: CondIsBillable, Value: "false"}, false},
		{"has tag", Condition{Type: CondHasTag, Value: "urgent"}, true},
		{"has tag miss", Condition{Type: CondHasTag, Value: "frontend"}, false},
		{"has tag negated", Condition{Type: CondHasTag, Operator: OpNotContains, Value: "frontend"}, true},
		{"has tag in", Condition{Type: CondHasTag, Operator: OpIn, Values: []string{"frontend", "backend"}}, true},
		{"has tag not in", Condition{Type: CondHasTag, Operator: OpNotIn, Values: []string{"backend"}}, false},
		{"field path", Condition{Type: CondField, Field: "tags.0.name", Operator: OpEquals, Value: "backend"}, false},
		{"field nested", Condition{Type: CondField, Field: "workspaceId", Operator: OpIn, Values: []string{"ws-1", "ws-2"}}, true},
		{"expression", Condition{Type: CondExpression, Expression: `billable and description contains "ACME"`}, true},
		{"expression miss", Condition{Type: CondExpression, Expression: `projectId == "other"`}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.evalCondition(&tt.cond, p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionErrors(t *testing.T) {
	p := entryPayload(t)
	e := NewEvaluator()

	_, err := e.evalCondition(&Condition{Type: "nonsense"}, p)
	assert.Error(t, err)

	_, err = e.evalCondition(&Condition{Type: CondField}, p)
	assert.Error(t, err)

	_, err = e.evalCondition(&Condition{Type: CondExpression, Expression: "(("}, p)
	assert.Error(t, err)
}

func TestCombinators(t *testing.T) {
	p := entryPayload(t)
	e := NewEvaluator()

	hit := Condition{Type: CondDescriptionContains, Value: "login"}
	miss := Condition{Type: CondDescriptionContains, Value: "payroll"}

	and := &Rule{Combinator: CombinatorAnd, Conditions: []Condition{hit, miss}}
	assert.False(t, e.Matches(and, p))

	or := &Rule{Combinator: CombinatorOr, Conditions: []Condition{miss, hit}}
	assert.True(t, e.Matches(or, p))

	// Empty combinator defaults to AND.
	implicit := &Rule{Conditions: []Condition{hit, hit}}
	assert.True(t, e.Matches(implicit, p))

	empty := &Rule{}
	assert.True(t, e.Matches(empty, p), "no conditions always matches")
}

func TestOrShortCircuitsBeforeBrokenCondition(t *testing.T) {
	p := entryPayload(t)
	e := NewEvaluator()

	r := &Rule{
		Combinator: CombinatorOr,
		Conditions: []Condition{
			{Type: CondDescriptionContains, Value: "login"},
			{Type: "nonsense"},
		},
	}
	assert.True(t, e.Matches(r, p), "first condition matched, second never evaluated")
}

func TestBrokenConditionNeverMatches(t *testing.T) {
	p := entryPayload(t)
	e := NewEvaluator()

	tests := []struct {
		name string
		rule *Rule
	}{
		{"unknown type", &Rule{Conditions: []Condition{{Type: "nonsense"}}}},
		{"field without path", &Rule{Conditions: []Condition{{Type: CondField}}}},
		{"expression runtime failure", &Rule{Conditions: []Condition{
			// compiles fine, fails at runtime: description is a string
			{Type: CondExpression, Expression: "description > 8"},
		}}},
		{"or of broken conditions", &Rule{Combinator: CombinatorOr, Conditions: []Condition{
			{Type: "nonsense"},
			{Type: CondExpression, Expression: "description > 8"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, e.Matches(tt.rule, p))
		})
	}
}

func TestSelectSkipsBrokenRule(t *testing.T) {
	p := entryPayload(t)
	e := NewEvaluator()

	rules := []*Rule{
		{Name: "broken", Event: "NEW_TIME_ENTRY", Enabled: true, Priority: 50,
			Conditions: []Condition{{Type: CondExpression, Expression: "description > 8"}}},
		{Name: "healthy", Event: "NEW_TIME_ENTRY", Enabled: true, Priority: 10,
			Conditions: []Condition{{Type: CondDescriptionContains, Value: "login"}}},
	}

	matched := e.Select(rules, "NEW_TIME_ENTRY", p)
	require.Len(t, matched, 1)
	assert.Equal(t, "healthy", matched[0].Name)
}

func TestSelectOrdersByPriority(t *testing.T) {
	p := entryPayload(t)
	e := NewEvaluator()

	rules := []*Rule{
		{Name: "low", Event: "NEW_TIME_ENTRY", Enabled: true, Priority: -10},
		{Name: "high", Event: "NEW_TIME_ENTRY", Enabled: true, Priority: 50},
		{Name: "disabled", Event: "NEW_TIME_ENTRY", Enabled: false, Priority: 100},
		{Name: "other-event", Event: "TIMER_STOPPED", Enabled: true, Priority: 100},
		{Name: "no-match", Event: "NEW_TIME_ENTRY", Enabled: true, Priority: 99,
			Conditions: []Condition{{Type: CondDescriptionContains, Value: "payroll"}}},
	}

	matched := e.Select(rules, "NEW_TIME_ENTRY", p)
	require.Len(t, matched, 2)
	assert.Equal(t, "high", matched[0].Name)
	assert.Equal(t, "low", matched[1].Name)
}

func TestResolvePlaceholders(t *testing.T) {
	p, err := payload.Parse([]byte(`{
		"id": "te 1",
		"description": "standup",
		"timeEntry": {"projectId": "p-1"},
		"billable": true,
		"duration": 90
	}`))
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"entry {{id}}", "entry te 1"},
		{"{{timeEntry.projectId}}", "p-1"},
		{"{{billable}}/{{duration}}", "true/90"},
		{"{{missing.path}}", ""},
		{"/time-entries/{{id|urlencode}}", "/time-entries/te%201"},
		{"no placeholders", "no placeholders"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.in, p), "template %q", tt.in)
	}
}

func TestResolveValueRecursesIntoJSON(t *testing.T) {
	p, err := payload.Parse([]byte(`{"id":"te-1","description":"standup"}`))
	require.NoError(t, err)

	in := map[string]any{
		"entryId": "{{id}}",
		"nested":  map[string]any{"note": "was: {{description}}"},
		"list":    []any{"{{id}}", 42},
		"count":   3,
	}
	out := ResolveValue(in, p).(map[string]any)

	assert.Equal(t, "te-1", out["entryId"])
	assert.Equal(t, "was: standup", out["nested"].(map[string]any)["note"])
	assert.Equal(t, "te-1", out["list"].([]any)[0])
	assert.Equal(t, 42, out["list"].([]any)[1])
	assert.Equal(t, 3, out["count"])
}
