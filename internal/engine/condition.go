package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/civicdesk/chatflow/internal/model"
)

// evalCondition evaluates a condition step against the session variables and
// returns the branch step id. Condition steps never render content. A
// missing config or branch id is an authoring error.
func (e *Executor) evalCondition(step *model.Step, sess *model.Session) (string, bool) {
	cfg := step.Condition
	if cfg == nil || cfg.TrueStepID == "" || cfg.FalseStepID == "" {
		return "", false
	}

	result := false
	if cfg.Expression != "" {
		result = evalExpression(cfg.Expression, sess.Variables)
	} else {
		result = evalOperator(cfg, sess.Variables)
	}

	if result {
		return cfg.TrueStepID, true
	}
	return cfg.FalseStepID, true
}

// evalExpression compiles and runs a free-form expression over the variable
// store. Undefined variables evaluate to nil rather than failing, so a
// partially collected session still branches deterministically.
func evalExpression(expression string, vars map[string]any) bool {
	env := vars
	if env == nil {
		env = map[string]any{}
	}
	program, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return false
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}

func evalOperator(cfg *model.ConditionConfig, vars map[string]any) bool {
	actual, exists := Lookup(vars, cfg.Field)

	switch cfg.Operator {
	case model.OpExists:
		return exists && actual != nil
	case model.OpEquals:
		return exists && looseEqual(actual, cfg.Value)
	case model.OpNotEquals:
		return !exists || !looseEqual(actual, cfg.Value)
	case model.OpContains:
		return exists && strings.Contains(
			strings.ToLower(asString(actual)),
			strings.ToLower(asString(cfg.Value)),
		)
	case model.OpGt:
		a, aok := asNumber(actual)
		b, bok := asNumber(cfg.Value)
		return exists && aok && bok && a > b
	case model.OpLt:
		a, aok := asNumber(actual)
		b, bok := asNumber(cfg.Value)
		return exists && aok && bok && a < b
	}
	return false
}

// looseEqual compares values the way collected chat input demands: numbers
// against numeric strings, everything else as strings.
func looseEqual(a, b any) bool {
	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			return an == bn
		}
	}
	return asString(a) == asString(b)
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	}
	return 0, false
}
