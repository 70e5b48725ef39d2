package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// ValueKey is the comparison key for a stored cell value: its JSON encoding.
// Two values are duplicates when their keys are equal.
func ValueKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// ValueText renders a stored cell the way Postgres ->> does: strings
// unquoted, numbers and booleans as their JSON literal, null as "".
func ValueText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ValueKey(v)
	}
}

// CloneData copies a row data document. Values are scalars, so a shallow
// copy is enough.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return maps.Clone(data)
}
