package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/metrics"
	"github.com/clockify/addon-sdk-go/pkg/payload"
)

// Evaluator decides whether rules match webhook payloads. Expression
// conditions are compiled once and cached by source text.
type Evaluator struct {
	programs sync.Map // expression source -> *vm.Program
	logger   zerolog.Logger
}

// NewEvaluator creates an evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{logger: log.WithComponent("rules")}
}

// Matches evaluates all conditions of a rule against the payload, applying
// the rule combinator with short-circuiting. A rule without conditions
// always matches. A condition that cannot be evaluated — unknown type,
// expression failing at runtime — never matches: one broken rule must not
// take down the processing of a delivery.
func (e *Evaluator) Matches(r *Rule, p payload.Payload) bool {
	if len(r.Conditions) == 0 {
		return true
	}
	or := strings.EqualFold(r.Combinator, CombinatorOr)

	for i := range r.Conditions {
		ok, err := e.evalCondition(&r.Conditions[i], p)
		if err != nil {
			metrics.RuleEvaluationsTotal.WithLabelValues("error").Inc()
			e.logger.Warn().
				Err(err).
				Str("rule", r.Name).
				Int("condition", i).
				Str("type", r.Conditions[i].Type).
				Msg("condition not evaluable, treating as non-match")
			ok = false
		}
		if or && ok {
			return true
		}
		if !or && !ok {
			return false
		}
	}
	return !or
}

// Select returns the matching rules from the list, highest priority first.
// Disabled rules, rules bound to other events, and rules whose conditions
// cannot be evaluated are skipped.
func (e *Evaluator) Select(list []*Rule, event string, p payload.Payload) []*Rule {
	candidates := make([]*Rule, 0, len(list))
	for _, r := range list {
		if !r.Enabled || !strings.EqualFold(r.Event, event) {
			metrics.RuleEvaluationsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		candidates = append(candidates, r)
	}
	SortByPriority(candidates)

	matched := make([]*Rule, 0, len(candidates))
	for _, r := range candidates {
		if e.Matches(r, p) {
			metrics.RuleEvaluationsTotal.WithLabelValues("matched").Inc()
			matched = append(matched, r)
		} else {
			metrics.RuleEvaluationsTotal.WithLabelValues("skipped").Inc()
		}
	}
	return matched
}

func (e *Evaluator) evalCondition(c *Condition, p payload.Payload) (bool, error) {
	switch c.Type {
	case CondExpression:
		return e.evalExpression(c.Expression, p)
	case CondDescriptionContains:
		return applyOperator(defaultOp(c.Operator, OpContains), p.String("description"), c)
	case CondDescriptionEquals:
		return applyOperator(defaultOp(c.Operator, OpEquals), p.String("description"), c)
	case CondProjectIDEquals:
		return applyOperator(defaultOp(c.Operator, OpEquals), p.String("projectId"), c)
	case CondIsBillable:
		want := strings.EqualFold(c.Value, "true") || c.Value == ""
		return p.Bool("billable") == want, nil
	case CondHasTag:
		return e.evalHasTag(c, p)
	case CondField:
		if c.Field == "" {
			return false, fmt.Errorf("field condition requires a field path")
		}
		return applyOperator(defaultOp(c.Operator, OpEquals), p.String(c.Field), c)
	default:
		return false, fmt.Errorf("unknown condition type %q", c.Type)
	}
}

// evalHasTag matches against the tag names attached to the payload entry.
// With "in"/"not_in" any of Values may match; the default checks Value.
func (e *Evaluator) evalHasTag(c *Condition, p payload.Payload) (bool, error) {
	names := tagNames(p)
	switch defaultOp(c.Operator, OpContains) {
	case OpContains, OpEquals:
		return containsFold(names, c.Value), nil
	case OpNotContains, OpNotEquals:
		return !containsFold(names, c.Value), nil
	case OpIn:
		for _, v := range c.Values {
			if containsFold(names, v) {
				return true, nil
			}
		}
		return false, nil
	case OpNotIn:
		for _, v := range c.Values {
			if containsFold(names, v) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("operator %q not valid for hasTag", c.Operator)
	}
}

func (e *Evaluator) evalExpression(src string, p payload.Payload) (bool, error) {
	if strings.TrimSpace(src) == "" {
		return false, fmt.Errorf("empty expression")
	}
	var program *vm.Program
	if cached, ok := e.programs.Load(src); ok {
		program = cached.(*vm.Program)
	} else {
		compiled, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return false, fmt.Errorf("compiling expression: %w", err)
		}
		e.programs.Store(src, compiled)
		program = compiled
	}

	env := map[string]any(p)
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("running expression: %w", err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not yield a boolean")
	}
	return b, nil
}

// checkExpression compiles the expression without running it, caching the
// program for later evaluation.
func (e *Evaluator) checkExpression(src string) error {
	if strings.TrimSpace(src) == "" {
		return fmt.Errorf("empty expression")
	}
	if _, ok := e.programs.Load(src); ok {
		return nil
	}
	program, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return fmt.Errorf("compiling expression: %w", err)
	}
	e.programs.Store(src, program)
	return nil
}

func applyOperator(op, actual string, c *Condition) (bool, error) {
	a := strings.ToLower(strings.TrimSpace(actual))
	v := strings.ToLower(strings.TrimSpace(c.Value))
	switch op {
	case OpEquals:
		return a == v, nil
	case OpNotEquals:
		return a != v, nil
	case OpContains:
		return v != "" && strings.Contains(a, v), nil
	case OpNotContains:
		return v == "" || !strings.Contains(a, v), nil
	case OpIn:
		return inFold(c.Values, a), nil
	case OpNotIn:
		return !inFold(c.Values, a), nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func defaultOp(op, fallback string) string {
	if op == "" {
		return fallback
	}
	return op
}

func inFold(values []string, lowered string) bool {
	for _, v := range values {
		if strings.ToLower(strings.TrimSpace(v)) == lowered {
			return true
		}
	}
	return false
}

func containsFold(names []string, want string) bool {
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

// tagNames extracts tag names from the payload, accepting both the webhook
// shape (array of tag objects) and a bare array of strings.
func tagNames(p payload.Payload) []string {
	v, ok := p.Lookup("tags")
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(arr))
	for _, item := range arr {
		switch t := item.(type) {
		case string:
			names = append(names, t)
		case map[string]any:
			if name, ok := t["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}
