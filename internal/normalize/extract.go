package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Raw is one campaign entry as decoded from the upstream payload. Field
// placement is not stable across Shopee API versions: the same value may sit
// at the top level or nested under "campaign", "report", or "ratio".
type Raw map[string]interface{}

// lookup resolves a dotted path ("report.broad_gmv") inside the raw payload.
func lookup(raw Raw, path string) (interface{}, bool) {
	cur := interface{}(map[string]interface{}(raw))
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// number tries each candidate path in order and returns the first value
// coercible to float64. Missing or non-numeric fields yield the default 0,
// never an error: upstream payloads routinely omit fields.
func number(raw Raw, paths ...string) float64 {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

// str tries each candidate path in order and returns the first string value.
func str(raw Raw, paths ...string) string {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case json.Number:
			return s.String()
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case int:
			return strconv.Itoa(s)
		case int64:
			return strconv.FormatInt(s, 10)
		}
	}
	return ""
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
