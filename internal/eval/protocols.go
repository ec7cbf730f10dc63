package eval

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"

	"vitalis/internal/knowledge"
)

var identPattern = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)

// conditionKeywords are tokens of the trigger language itself, not biomarker
// references.
var conditionKeywords = map[string]bool{
	"or": true, "and": true, "not": true, "true": true, "false": true,
}

// ConditionInputs returns the biomarker slugs a trigger condition references.
func ConditionInputs(condition string) []string {
	var inputs []string
	seen := make(map[string]bool)
	for _, tok := range identPattern.FindAllString(condition, -1) {
		if conditionKeywords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		inputs = append(inputs, tok)
	}
	return inputs
}

// EvaluateTrigger decides whether a protocol's trigger condition holds for
// the available values. A condition referencing any biomarker without a
// value is excluded outright (returns false) rather than evaluated against a
// placeholder: a missing value must never accidentally satisfy a condition.
// An error is returned only for malformed conditions.
func EvaluateTrigger(def knowledge.ProtocolDefinition, values map[string]float64) (bool, error) {
	inputs := ConditionInputs(def.TriggerCondition)
	if len(inputs) == 0 {
		return false, fmt.Errorf("trigger condition references no biomarkers")
	}

	env := make(map[string]interface{}, len(inputs))
	for _, slug := range inputs {
		v, ok := values[slug]
		if !ok {
			// Not an error: exclusion is the contract for missing inputs.
			return false, nil
		}
		env[slug] = v
	}

	// expr understands or/and/not natively, so the condition compiles as-is
	// against a bound environment. No general code execution.
	program, err := expr.Compile(def.TriggerCondition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("invalid trigger condition: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("trigger evaluation failed: %w", err)
	}

	triggered, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("trigger condition produced non-boolean result %T", out)
	}
	return triggered, nil
}
