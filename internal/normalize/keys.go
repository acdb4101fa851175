package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// canonicalKey maps PascalCase, camelCase and acronym keys onto one lower
// camel spelling: MountPoints -> mountPoints, TTL -> ttl, URLPath -> urlPath,
// CacheTTL -> cacheTTL.
func canonicalKey(key string) string {
	if key == "" {
		return key
	}
	runes := []rune(key)

	upper := 0
	for upper < len(runes) && unicode.IsUpper(runes[upper]) {
		upper++
	}
	switch {
	case upper == 0:
		return key
	case upper == len(runes):
		return strings.ToLower(key)
	case upper > 1 && unicode.IsLower(runes[upper]):
		// the last capital starts the next word
		upper--
	}
	for i := 0; i < upper; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// canonicalizeValue rewrites every mapping key in v into a fresh tree.
// Decoders hand us both map[string]any and map[any]any; both come out as
// map[string]any, and integers come out as int64.
func canonicalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			putCanonical(out, k, canonicalizeValue(val))
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			putCanonical(out, keyString(k), canonicalizeValue(val))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalizeValue(val)
		}
		return out
	case int:
		return int64(t)
	case json.Number:
		// JSON and YAML decoding must agree on number types
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// putCanonical stores val under the canonical spelling of key. When both
// spellings are present the one already in canonical form wins.
func putCanonical(out map[string]any, key string, val any) {
	ck := canonicalKey(key)
	if _, exists := out[ck]; exists && ck != key {
		return
	}
	out[ck] = val
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
