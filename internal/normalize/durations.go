package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rcourtman/crauti-dashboard/internal/models"
)

// durationKeys are the canonical keys whose scalar values are durations.
var durationKeys = map[string]struct{}{
	"ttl":          {},
	"cacheTTL":     {},
	"timeout":      {},
	"readTimeout":  {},
	"writeTimeout": {},
	"idleTimeout":  {},
}

func isDurationKey(key string) bool {
	_, ok := durationKeys[key]
	return ok
}

// toDuration converts a wire duration to microseconds. Integers are counted
// in wireUnit; strings use Go duration syntax ("1m30s").
func toDuration(v any, wireUnit time.Duration) (models.Duration, bool) {
	switch n := v.(type) {
	case models.Duration:
		return n, true
	case int:
		return scaleToMicros(int64(n), wireUnit), true
	case int64:
		return scaleToMicros(n, wireUnit), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return scaleToMicros(int64(n), wireUnit), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return scaleToMicros(int64(n), wireUnit), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return scaleToMicros(i, wireUnit), true
		}
		if f, err := n.Float64(); err == nil {
			return scaleToMicros(int64(f), wireUnit), true
		}
		return 0, false
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return models.Duration(d.Microseconds()), true
	default:
		return 0, false
	}
}

func scaleToMicros(n int64, wireUnit time.Duration) models.Duration {
	if wireUnit <= 0 {
		wireUnit = time.Nanosecond
	}
	if wireUnit >= time.Microsecond {
		return models.Duration(n * int64(wireUnit/time.Microsecond))
	}
	return models.Duration(n / int64(time.Microsecond/wireUnit))
}

// convertDurations replaces known duration leaves in a canonicalized tree.
// Values that do not parse are left as they came.
func convertDurations(v any, wireUnit time.Duration) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if isDurationKey(k) {
				if d, ok := toDuration(val, wireUnit); ok {
					t[k] = d
					continue
				}
			}
			t[k] = convertDurations(val, wireUnit)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = convertDurations(val, wireUnit)
		}
		return t
	default:
		return v
	}
}
