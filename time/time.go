package time

import (
	"strings"
	"time"
)

// ShortDur shortens d.String() by dropping zero trailing units, so a batch
// that took two minutes logs as "2m" instead of "2m0s". Durations of a
// second or more are rounded to the millisecond first.
func ShortDur(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d >= time.Second || d <= -time.Second {
		d = d.Round(time.Millisecond)
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}
