package s800

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Selection is a compiled event selection. An empty expression selects
// every event. It is safe for concurrent use.
type Selection struct {
	expression string
	prog       cel.Program
	enabled    bool
}

// NewSelection compiles expr. The expression sees event_number, error,
// value (map of named quantities such as "crdc1.x" or "fp.ata") and valid
// (same keys, false when the quantity is undetermined).
func NewSelection(expr string) (*Selection, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Selection{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("event_number", cel.IntType),
		cel.Variable("error", cel.BoolType),
		cel.Variable("value", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("valid", cel.MapType(cel.StringType, cel.BoolType)),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, &ConfigError{Field: "selection", Reason: iss.Err().Error()}
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, &ConfigError{Field: "selection", Reason: iss2.Err().Error()}
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, &ConfigError{Field: "selection", Reason: fmt.Sprintf("expression must be boolean, got %v", checked.OutputType())}
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &Selection{expression: expr, prog: prog, enabled: true}, nil
}

func (s *Selection) Enabled() bool {
	return s.enabled
}

// Select evaluates the selection on a processed event. Evaluation errors,
// such as a missing map key, reject the event.
func (s *Selection) Select(event *EventType) bool {
	if !s.enabled {
		return true
	}
	values, valid := event.Values()
	out, _, err := s.prog.Eval(map[string]any{
		"event_number": int64(event.EventNumber),
		"error":        event.Error,
		"value":        values,
		"valid":        valid,
	})
	if err != nil {
		if verbosity > 1 {
			message := fmt.Sprintf("Selection %q on event %d: %v", s.expression, event.EventNumber, err)
			logger.Info(message, "selection")
		}
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
