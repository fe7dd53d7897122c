package command

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Slot values arrive from JSON or in-process callers, so every scalar
// may show up as a string, a float64, or a native Go type. These
// helpers narrow them without erroring on absent keys.

func slotString(slots map[string]any, key string) string {
	v, ok := slots[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	}
	return ""
}

func slotInt64(slots map[string]any, key string) int64 {
	v, ok := slots[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	}
	return 0
}

func slotBool(slots map[string]any, key string) bool {
	v, ok := slots[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1" || t == "yes"
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

func slotDataMap(slots map[string]any, key string) map[string]any {
	if m, ok := slots[key].(map[string]any); ok {
		return m
	}
	return nil
}

// slotFieldList accepts "a,b,c" or a list of strings.
func slotFieldList(slots map[string]any, key string) []string {
	switch t := slots[key].(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []string:
		return t
	case []any:
		var out []string
		for _, v := range t {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}
