package models

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dest := make(map[string]any, len(src))
	for k, v := range src {
		dest[k] = cloneAny(v)
	}
	return dest
}

func cloneAnySlice(src []any) []any {
	if src == nil {
		return nil
	}
	dest := make([]any, len(src))
	for i, v := range src {
		dest[i] = cloneAny(v)
	}
	return dest
}

// cloneAny copies the container types produced by decoding; scalars are
// values already.
func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAnyMap(t)
	case MiddlewareSet:
		return t.Clone()
	case []any:
		return cloneAnySlice(t)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
