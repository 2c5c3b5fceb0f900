package command

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// paramString reads params[key] as a trimmed string. Missing or null keys
// read as "".
func paramString(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// paramFloat reads params[key] as a float64. JSON numbers, integers of any
// width and numeric strings are accepted. present is false when the key is
// missing or null.
func paramFloat(params map[string]any, key string) (value float64, present bool, err error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}

	switch n := v.(type) {
	case float64:
		value = n
	case float32:
		value = float64(n)
	case int:
		value = float64(n)
	case int64:
		value = float64(n)
	case uint64:
		value = float64(n)
	case json.Number:
		value, err = n.Float64()
	case string:
		value, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err == nil && (math.IsNaN(value) || math.IsInf(value, 0)) {
		err = fmt.Errorf("not a finite number")
	}
	if err != nil {
		return 0, true, fmt.Errorf("params.%s: %w", key, err)
	}
	return value, true, nil
}

// paramInt reads params[key] as an int. Floats must be integral.
func paramInt(params map[string]any, key string) (value int, present bool, err error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}

	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case uint64:
		if n > math.MaxInt32 {
			return 0, true, fmt.Errorf("params.%s: %d out of range", key, n)
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, fmt.Errorf("params.%s: %w", key, err)
		}
		return i, true, nil
	}

	f, _, err := paramFloat(params, key)
	if err != nil {
		return 0, true, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, true, fmt.Errorf("params.%s: %v is not an integer", key, f)
	}
	return int(f), true, nil
}
