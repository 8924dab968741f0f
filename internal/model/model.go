package model

import "time"

// Event is a single VEVENT as the filter sees it. Only the properties the
// filter carries through are modeled; recurrence rules live in the raw
// recurrence index instead (see internal/ics).
type Event struct {
	UID string // iCalendar UID, TEXT escapes decoded

	// Summary is the decoded SUMMARY text.
	Summary string

	AllDay bool

	// Start / End carry their original zone until converted.
	Start time.Time
	End   time.Time
}

// Document is an ordered list of events. Order is preserved by every stage.
type Document struct {
	Events []Event
}

// UIDs returns the event identifiers in document order.
func (d Document) UIDs() []string {
	out := make([]string, 0, len(d.Events))
	for _, ev := range d.Events {
		out = append(out, ev.UID)
	}
	return out
}
