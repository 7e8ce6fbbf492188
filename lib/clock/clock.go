package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const layout = "2006-01-02T15:04:05Z"

// MaxDurationHours bounds license durations (100 years), well inside the
// range of time.Duration.
const MaxDurationHours = 100 * 365 * 24

func Now() string {
	return Format(time.Now())
}

func Format(t time.Time) string {
	return t.UTC().Format(layout)
}

// Expiration returns the moment a grant redeemed at from for the given
// number of hours stops being valid. hours must not exceed MaxDurationHours.
func Expiration(from time.Time, hours int) time.Time {
	return from.UTC().Add(time.Duration(hours) * time.Hour)
}

// Expired reports whether expiration lies strictly before now.
func Expired(expiration, now time.Time) bool {
	return expiration.Before(now)
}

// Remaining is the time left until expiration, never negative.
func Remaining(expiration, now time.Time) time.Duration {
	d := expiration.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// FormatRemaining renders a duration as days, hours and minutes, e.g. "2d 5h 13m".
func FormatRemaining(d time.Duration) string {
	if d < time.Minute {
		return "0m"
	}
	d = d.Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}

var durationWord = regexp.MustCompile(`^(\d+)([a-z]+)$`)

var unitHours = map[string]int{
	"y": 365 * 24, "year": 365 * 24, "years": 365 * 24,
	"m": 30 * 24, "month": 30 * 24, "months": 30 * 24,
	"w": 7 * 24, "week": 7 * 24, "weeks": 7 * 24,
	"d": 24, "day": 24, "days": 24,
	"h": 1, "hour": 1, "hours": 1,
}

// ParseDuration converts a license duration argument into hours.
// Accepted forms are a bare number of hours ("20") or space separated
// [integer][unit] words ("2y 5months", "3d 12h", "1w 2m 1w") where unit is
// one of years/y, months/m, weeks/w, days/d, hours/h. Repeated words add up.
// The total may not exceed MaxDurationHours.
func ParseDuration(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, fmt.Errorf("duration must be positive: %s", s)
		}
		if n > MaxDurationHours {
			return 0, fmt.Errorf("duration exceeds %d hours: %s", MaxDurationHours, s)
		}
		return n, nil
	}

	total := 0
	for _, word := range strings.Fields(s) {
		m := durationWord.FindStringSubmatch(word)
		if m == nil {
			return 0, fmt.Errorf("invalid duration word: %s", word)
		}
		unit, ok := unitHours[m[2]]
		if !ok {
			return 0, fmt.Errorf("unknown duration unit: %s", m[2])
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration number: %s", m[1])
		}
		if n > (MaxDurationHours-total)/unit {
			return 0, fmt.Errorf("duration exceeds %d hours: %s", MaxDurationHours, s)
		}
		total += n * unit
	}
	if total < 1 {
		return 0, fmt.Errorf("duration must be positive: %s", s)
	}
	return total, nil
}
