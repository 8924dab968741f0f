package ics

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ValidateRule checks that an RRULE value (without the "RRULE:" prefix)
// is understood by rrule-go.
func ValidateRule(value string) error {
	if _, err := rrule.StrToROption(value); err != nil {
		return fmt.Errorf("invalid RRULE %q: %w", value, err)
	}
	return nil
}

// NextOccurrence returns the first occurrence of the series described by
// line (a full "RRULE:..." content line) starting at dtstart, on or after
// after. ok is false when the series has ended.
func NextOccurrence(line string, dtstart, after time.Time) (next time.Time, ok bool, err error) {
	_, value, found := splitProperty(line)
	if !found {
		value = strings.TrimPrefix(line, "RRULE:")
	}
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid RRULE %q: %w", value, err)
	}
	opt.Dtstart = dtstart
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid RRULE %q: %w", value, err)
	}
	next = r.After(after, true)
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next, true, nil
}
