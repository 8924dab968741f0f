package filter

import (
	"strings"
	"time"

	"icsfilter/internal/model"
)

// Criteria selects which events survive and where they are dated.
type Criteria struct {
	// Keywords are matched as case-sensitive substrings of the event name.
	Keywords []string

	// Cutoff, if non-zero, drops events whose localized begin is earlier.
	Cutoff time.Time

	// Location is the target zone. If nil, time.Local is used.
	Location *time.Location
}

// Verdict is the outcome of Match.
type Verdict int

const (
	Keep Verdict = iota
	DropBeforeCutoff
	DropNoKeyword
)

func (v Verdict) String() string {
	switch v {
	case Keep:
		return "keep"
	case DropBeforeCutoff:
		return "before_cutoff"
	case DropNoKeyword:
		return "no_keyword"
	default:
		return "unknown"
	}
}

// Stats counts what Apply did with a document.
type Stats struct {
	Parsed           int
	Kept             int
	DroppedCutoff    int
	DroppedNoKeyword int
}

func (c Criteria) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Localize returns t in the target zone. Date-only (all-day) times are
// floating, so their calendar date is kept rather than their instant.
func (c Criteria) Localize(t time.Time, allDay bool) time.Time {
	loc := c.location()
	if allDay {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	return t.In(loc)
}

// Match applies the cutoff test first, then the keyword test.
func (c Criteria) Match(ev model.Event) Verdict {
	if !c.Cutoff.IsZero() {
		if c.Localize(ev.Start, ev.AllDay).Before(c.Cutoff) {
			return DropBeforeCutoff
		}
	}
	for _, kw := range c.Keywords {
		if strings.Contains(ev.Summary, kw) {
			return Keep
		}
	}
	return DropNoKeyword
}

// Apply returns a new document holding the matching events of doc, in
// order, each converted to an all-day event in the target zone. doc is not
// modified.
func Apply(doc model.Document, c Criteria) (model.Document, Stats) {
	out := model.Document{Events: make([]model.Event, 0, len(doc.Events))}
	stats := Stats{Parsed: len(doc.Events)}

	for _, ev := range doc.Events {
		switch c.Match(ev) {
		case DropBeforeCutoff:
			stats.DroppedCutoff++
			continue
		case DropNoKeyword:
			stats.DroppedNoKeyword++
			continue
		}
		out.Events = append(out.Events, c.ToAllDay(ev))
		stats.Kept++
	}
	return out, stats
}

// ToAllDay converts ev into a one-day all-day event on the local date of
// its begin in the target zone. The original end is not carried over, so an
// overnight shift stays on the day it starts.
func (c Criteria) ToAllDay(ev model.Event) model.Event {
	startDate := truncateToDate(c.Localize(ev.Start, ev.AllDay))
	endDate := startDate.AddDate(0, 0, 1)

	return model.Event{
		UID:     ev.UID,
		Summary: ev.Summary,
		AllDay:  true,
		Start:   startDate,
		End:     endDate,
	}
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
