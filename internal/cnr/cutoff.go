package cnr

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	cutoffLayout  = "2 January 2006"
	rowDateLayout = "02-01-2006"
)

var (
	cutoffPattern = regexp.MustCompile(`^\d{1,2}(st|nd|rd|th)\s\w+\s\d{4}$`)
	ordinalSuffix = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th)`)
)

// Cutoff is an inclusive lower bound on history and order dates.
// The zero value disables filtering.
type Cutoff struct {
	raw  string
	date time.Time
}

// ParseCutoff accepts dates such as "30th January 2025". An empty string
// yields the zero Cutoff.
func ParseCutoff(raw string) (Cutoff, error) {
	if raw == "" {
		return Cutoff{}, nil
	}
	if !cutoffPattern.MatchString(raw) {
		return Cutoff{}, fmt.Errorf("%w: %q", ErrInvalidCutoff, raw)
	}
	fields := strings.Fields(ordinalSuffix.ReplaceAllString(raw, "$1"))
	if len(fields) != 3 {
		return Cutoff{}, fmt.Errorf("%w: %q", ErrInvalidCutoff, raw)
	}
	// time.Parse wants "January"; callers send "january" as often as not.
	fields[1] = strings.ToUpper(fields[1][:1]) + strings.ToLower(fields[1][1:])
	date, err := time.Parse(cutoffLayout, strings.Join(fields, " "))
	if err != nil {
		return Cutoff{}, fmt.Errorf("%w: %q: %v", ErrInvalidCutoff, raw, err)
	}
	return Cutoff{raw: raw, date: date}, nil
}

// IsZero reports whether no cutoff was supplied.
func (c Cutoff) IsZero() bool {
	return c.date.IsZero()
}

// String returns the cutoff as supplied.
func (c Cutoff) String() string {
	return c.raw
}

// Date returns the parsed cutoff.
func (c Cutoff) Date() time.Time {
	return c.date
}

// Admits reports whether a DD-MM-YYYY row date is on or after the cutoff.
// Unparsable dates are rejected; a zero Cutoff admits everything.
func (c Cutoff) Admits(rowDate string) bool {
	if c.IsZero() {
		return true
	}
	d, ok := ParseRowDate(rowDate)
	if !ok {
		return false
	}
	return !d.Before(c.date)
}

// ParseRowDate parses the DD-MM-YYYY dates printed in portal tables.
func ParseRowDate(raw string) (time.Time, bool) {
	d, err := time.Parse(rowDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
