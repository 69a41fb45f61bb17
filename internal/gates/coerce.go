package gates

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// canonical renders a value as the string used for equality checks.
//
// Configured values are strings while live fields may be bool, numeric or
// string, so both sides go through the same rule: nil is "", booleans are
// "true"/"false", numbers use the shortest decimal form, and strings that
// spell a boolean or a finite number are rewritten to that form. Everything
// else compares as its trimmed text, case-sensitively.
func canonical(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case string:
		return canonicalString(x)
	case json.Number:
		return canonicalString(x.String())
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.UTC().Format(time.RFC3339Nano)
	}
	if f, ok := toFloat(v); ok {
		return formatNumber(f)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func canonicalString(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "true", "false":
		return s
	}
	if f, ok := parseFinite(s); ok {
		return formatNumber(f)
	}
	return s
}

// toFloat converts numeric values and numeric strings to float64.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		return parseFinite(x.String())
	case string:
		return parseFinite(strings.TrimSpace(x))
	}
	return 0, false
}

func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// isEmpty reports whether a field value counts as unset.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case *time.Time:
		return x == nil
	}
	return false
}

// isTruthy interprets flag-like field values.
func isTruthy(v any) bool {
	switch canonical(v) {
	case "true", "1", "yes":
		return true
	}
	return false
}
