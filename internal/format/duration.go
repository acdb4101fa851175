// Package format renders raw gateway values for display.
package format

import (
	"strconv"
	"strings"
)

const microsPerSecond = 1_000_000

// Duration renders a signed microsecond count as a compact "1h2m3s" string.
// Sub-second precision is dropped and zero components are omitted, so any
// value under one second renders as "".
func Duration(us int64) string {
	negative := us < 0
	mag := uint64(us)
	if negative {
		mag = uint64(-(us + 1)) + 1
	}

	secs := mag / microsPerSecond
	minutes := secs / 60
	hours := minutes / 60
	secs %= 60
	minutes %= 60

	var b strings.Builder
	if hours != 0 {
		b.WriteString(strconv.FormatUint(hours, 10))
		b.WriteByte('h')
	}
	if minutes != 0 {
		b.WriteString(strconv.FormatUint(minutes, 10))
		b.WriteByte('m')
	}
	if secs != 0 {
		b.WriteString(strconv.FormatUint(secs, 10))
		b.WriteByte('s')
	}
	if b.Len() == 0 {
		return ""
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

// DurationOrZero is Duration with "0s" in place of the empty rendering.
func DurationOrZero(us int64) string {
	if out := Duration(us); out != "" {
		return out
	}
	return "0s"
}
