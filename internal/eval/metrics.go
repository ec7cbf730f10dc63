package eval

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"vitalis/internal/knowledge"
)

var formulaSlugPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// FormulaInputs returns the biomarker slugs a formula references, in order
// of first appearance.
func FormulaInputs(formula string) []string {
	var inputs []string
	seen := make(map[string]bool)
	for _, m := range formulaSlugPattern.FindAllStringSubmatch(formula, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			inputs = append(inputs, m[1])
		}
	}
	return inputs
}

// CalculateMetric evaluates one metric formula against the value map. A
// missing input or an expression failure yields a nil value with an
// explanatory error; inputs are never defaulted to zero.
func CalculateMetric(def knowledge.MetricDefinition, values map[string]float64) MetricCalculation {
	calc := MetricCalculation{
		Slug:    def.Slug,
		Name:    def.Name,
		Formula: def.Formula,
		Status:  StatusUnknown,
	}

	inputs := FormulaInputs(def.Formula)
	if len(inputs) == 0 {
		calc.Error = "formula references no biomarkers"
		return calc
	}

	env := make(map[string]interface{}, len(inputs))
	for _, slug := range inputs {
		v, ok := values[slug]
		if !ok {
			calc.Error = fmt.Sprintf("missing biomarker value for %s", slug)
			return calc
		}
		env[slug] = v
	}

	// {slug} placeholders become plain variable names, then the expression
	// is compiled against a bound environment. No general code execution.
	source := formulaSlugPattern.ReplaceAllString(def.Formula, "$1")
	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		calc.Error = fmt.Sprintf("invalid formula: %v", err)
		return calc
	}
	out, err := expr.Run(program, env)
	if err != nil {
		calc.Error = fmt.Sprintf("formula evaluation failed: %v", err)
		return calc
	}

	value, ok := toFloat(out)
	if !ok {
		calc.Error = fmt.Sprintf("formula produced non-numeric result %T", out)
		return calc
	}
	// Float division never errors, so a zero denominator surfaces here as
	// Inf or NaN. Either one is a null result, never a classified value.
	if math.IsNaN(value) || math.IsInf(value, 0) {
		calc.Error = fmt.Sprintf("formula produced a non-finite result (%v)", value)
		return calc
	}

	calc.Value = &value
	if value < def.TargetMin || value > def.TargetMax {
		calc.Status = StatusSuboptimal
		calc.Message = fmt.Sprintf("%s = %.2f is outside the target range [%.2f, %.2f]. %s",
			def.Name, value, def.TargetMin, def.TargetMax, strings.TrimSpace(def.RiskInsight))
	} else {
		calc.Status = StatusOptimal
		calc.Message = fmt.Sprintf("%s = %.2f is within the target range [%.2f, %.2f]",
			def.Name, value, def.TargetMin, def.TargetMax)
	}
	calc.Message = strings.TrimSpace(calc.Message)
	return calc
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
