package engine

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cryguy/jsworker/internal/core"
)

const opConstruct = "Worker"

// Designator validates worker constructor arguments: exactly one
// non-blank string without control characters.
func Designator(args ...any) (string, error) {
	switch len(args) {
	case 0:
		return "", core.Argument(opConstruct, "1 argument required, but only 0 present")
	case 1:
	default:
		return "", core.Argument(opConstruct, "expects exactly 1 argument, got %d", len(args))
	}

	s, ok := args[0].(string)
	if !ok {
		return "", core.Argument(opConstruct, "script designator must be a string, got %s", typeName(args[0]))
	}
	if strings.TrimSpace(s) == "" {
		return "", core.Argument(opConstruct, "script designator is empty")
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", core.Argument(opConstruct, "script designator %q contains control characters", s)
	}
	return s, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
