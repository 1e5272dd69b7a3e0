package scaffold

import (
	"fmt"

	"github.com/fulmenhq/stencil/pkg/logger"
)

// MaxResolvePasses bounds the fixpoint iteration over computed defaults.
const MaxResolvePasses = 10

// Resolution is the outcome of resolving a template's variables.
type Resolution struct {
	Values Variables
	// Passes is the number of evaluation passes that ran.
	Passes int
	// Unresolved names declared variables left absent, in declaration order.
	Unresolved []string
}

// Resolve seeds the result with answers and evaluates declared defaults in declaration order,
// repeating until a pass makes no progress or MaxResolvePasses is reached. A default whose
// expression reads a variable that is not resolved yet is retried on the next pass; one that
// never resolves is left absent. Resolve has no side effects.
func Resolve(engine *Engine, questions []Question, answers Variables) Resolution {
	result := answers.Clone()

	passes := 0
	for passes < MaxResolvePasses && pending(questions, result) {
		passes++
		progress := false
		for _, q := range questions {
			if _, ok := result[q.Name]; ok || !q.HasDefault() {
				continue
			}
			if !q.IsExpression() {
				result[q.Name] = literal(q.Default)
				progress = true
				continue
			}
			expr := q.Default.(string)
			if !ready(engine.References(expr), result) {
				continue
			}
			value, err := engine.RenderString(expr, result)
			if err != nil {
				logger.Debug(fmt.Sprintf("default for %s not evaluated yet", q.Name), logger.Err(err))
				continue
			}
			result[q.Name] = value
			progress = true
		}
		if !progress {
			break
		}
	}

	var unresolved []string
	for _, q := range questions {
		if _, ok := result[q.Name]; !ok {
			unresolved = append(unresolved, q.Name)
		}
	}
	return Resolution{Values: result, Passes: passes, Unresolved: unresolved}
}

func pending(questions []Question, result Variables) bool {
	for _, q := range questions {
		if _, ok := result[q.Name]; !ok && q.HasDefault() {
			return true
		}
	}
	return false
}

func ready(refs []string, result Variables) bool {
	for _, ref := range refs {
		if _, ok := result[ref]; !ok {
			return false
		}
	}
	return true
}

// literal formats a non-expression default the way it would be answered.
func literal(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
