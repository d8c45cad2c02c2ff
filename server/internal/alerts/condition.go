package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/obsidianstack/reqscope/pkg/types"
)

// condition is a parsed "field operator value" rule expression.
//
// Supported expressions:
//
//	status >= 500
//	status == 404
//	response_time_ms > 1000
//	method == DELETE
//	path == /admin
//	path != /health
type condition struct {
	field     string
	op        string
	rhs       string
	threshold float64
}

// parseCondition validates expr. Numeric fields accept > >= < <= == !=,
// string fields accept == and !=.
func parseCondition(expr string) (condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field op value\"", expr)
	}
	c := condition{field: parts[0], op: parts[1], rhs: parts[2]}

	switch c.field {
	case "status", "response_time_ms":
		switch c.op {
		case ">", ">=", "<", "<=", "==", "!=":
		default:
			return condition{}, fmt.Errorf("condition %q: operator %q not supported for %s", expr, c.op, c.field)
		}
		v, err := strconv.ParseFloat(c.rhs, 64)
		if err != nil {
			return condition{}, fmt.Errorf("condition %q: %s needs a number", expr, c.field)
		}
		c.threshold = v
	case "method", "path":
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("condition %q: operator %q not supported for %s", expr, c.op, c.field)
		}
		if c.field == "method" {
			c.rhs = strings.ToUpper(c.rhs)
		}
	default:
		return condition{}, fmt.Errorf("condition %q: unknown field %q", expr, c.field)
	}
	return c, nil
}

// eval reports whether rec matches and the numeric value that was compared
// (0 for string fields).
func (c condition) eval(rec types.Record) (bool, float64) {
	switch c.field {
	case "status":
		v := float64(rec.Status)
		return compareFloat(v, c.op, c.threshold), v
	case "response_time_ms":
		v := float64(rec.ResponseTime)
		return compareFloat(v, c.op, c.threshold), v
	case "method":
		return compareString(strings.ToUpper(rec.Method), c.op, c.rhs), 0
	case "path":
		return compareString(rec.Path, c.op, c.rhs), 0
	default:
		return false, 0
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func compareString(v, op, want string) bool {
	switch op {
	case "==":
		return v == want
	case "!=":
		return v != want
	default:
		return false
	}
}
