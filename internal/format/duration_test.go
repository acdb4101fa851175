package format

import (
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want string
	}{
		{name: "zero", in: 0, want: ""},
		{name: "sub-second", in: 999_999, want: ""},
		{name: "one second", in: 1_000_000, want: "1s"},
		{name: "drops fraction", in: 1_500_000, want: "1s"},
		{name: "one minute", in: 60_000_000, want: "1m"},
		{name: "minute and seconds", in: 90_000_000, want: "1m30s"},
		{name: "hour minute second", in: 3_723_000_000, want: "1h2m3s"},
		{name: "hour only", in: 3_600_000_000, want: "1h"},
		{name: "hour and seconds", in: 3_605_000_000, want: "1h5s"},
		{name: "hours do not wrap", in: 90_000_000_000, want: "25h"},
		{name: "negative", in: -3_723_000_000, want: "-1h2m3s"},
		{name: "negative sub-second", in: -500, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Duration(tt.in))
		})
	}
}

func TestDurationMinInt64(t *testing.T) {
	out := Duration(math.MinInt64)
	require.NotEmpty(t, out)
	assert.Equal(t, byte('-'), out[0])
}

func TestDurationOrZero(t *testing.T) {
	assert.Equal(t, "0s", DurationOrZero(0))
	assert.Equal(t, "0s", DurationOrZero(250_000))
	assert.Equal(t, "2m", DurationOrZero(120_000_000))
}

var componentRe = regexp.MustCompile(`^(-)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

func TestDurationReconstructsWholeSeconds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		d := rng.Int63n(1<<45) - (1 << 44)
		out := Duration(d)

		m := componentRe.FindStringSubmatch(out)
		require.NotNil(t, m, "unexpected rendering %q for %d", out, d)

		var total int64
		for idx, mult := range map[int]int64{2: 3600, 3: 60, 4: 1} {
			if m[idx] == "" {
				continue
			}
			n, err := strconv.ParseInt(m[idx], 10, 64)
			require.NoError(t, err)
			if idx != 2 {
				assert.Less(t, n, int64(60), "component wraps in %q", out)
			}
			assert.NotZero(t, n, "zero component emitted in %q", out)
			total += n * mult
		}

		mag := d
		if mag < 0 {
			mag = -mag
		}
		assert.Equal(t, mag/1_000_000, total, "input %d rendered %q", d, out)
		if total != 0 {
			assert.Equal(t, d < 0, m[1] == "-", "sign of %d in %q", d, out)
		}
	}
}
