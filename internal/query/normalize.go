package query

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// NormalizeKeys converts filter values to the text form stored in the scratch
// table. Nil-like values (nil, nil pointers, invalid sql.Null* values, NaN)
// are dropped; everything else is stringified and trimmed. Order is kept and
// duplicates are left to the scratch table's primary key.
func NormalizeKeys(values []any) []string {
	keys := make([]string, 0, len(values))
	for _, value := range values {
		key, ok := normalizeKey(value)
		if !ok {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func normalizeKey(value any) (string, bool) {
	if valuer, ok := value.(driver.Valuer); ok {
		if isNilPointer(value) {
			return "", false
		}
		resolved, err := valuer.Value()
		if err != nil || resolved == nil {
			return "", false
		}
		value = resolved
	}

	switch typed := value.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(typed), true
	case []byte:
		return strings.TrimSpace(string(typed)), true
	case float64:
		if math.IsNaN(typed) {
			return "", false
		}
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case float32:
		if math.IsNaN(float64(typed)) {
			return "", false
		}
		return strconv.FormatFloat(float64(typed), 'f', -1, 32), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case fmt.Stringer:
		if isNilPointer(value) {
			return "", false
		}
		return strings.TrimSpace(typed.String()), true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		return normalizeKey(rv.Elem().Interface())
	}
	return strings.TrimSpace(fmt.Sprint(value)), true
}

func isNilPointer(value any) bool {
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// StripTerminators trims surrounding whitespace and every trailing
// semicolon so the statement can be nested as a subquery.
func StripTerminators(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
