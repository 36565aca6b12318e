package admin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const month = 30 * 24 * time.Hour

// maxDuration bounds admin input well below the int64 nanosecond range.
const maxDuration = 10 * 365 * 24 * time.Hour

var durationRe = regexp.MustCompile(`^(\d+)\s*([a-z]+)$`)

var durationUnits = map[string]time.Duration{
	"kun":    24 * time.Hour,
	"d":      24 * time.Hour,
	"day":    24 * time.Hour,
	"days":   24 * time.Hour,
	"soat":   time.Hour,
	"h":      time.Hour,
	"hour":   time.Hour,
	"hours":  time.Hour,
	"oy":     month,
	"mo":     month,
	"month":  month,
	"months": month,
}

// ParseDuration reads admin duration text such as "3 kun", "5 soat",
// "1 oy", "12h" or "2d". A month is 30 days. "indefinite" (or "cheksiz")
// yields nil, meaning no end. Durations above ten years are rejected.
func ParseDuration(raw string) (*time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "indefinite", "cheksiz", "forever":
		return nil, nil
	}

	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: duration %q", ErrInvalidInput, raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: duration %q", ErrInvalidInput, raw)
	}
	unit, ok := durationUnits[m[2]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown duration unit %q", ErrInvalidInput, m[2])
	}
	if int64(n) > int64(maxDuration/unit) {
		return nil, fmt.Errorf("%w: duration %q exceeds %s", ErrInvalidInput, raw, maxDuration)
	}
	d := time.Duration(n) * unit
	return &d, nil
}
