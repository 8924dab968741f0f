package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "icsfilter/internal/log"
	"icsfilter/internal/model"
)

// ParseDocument parses an ICS payload into a model.Document.
//
//   - Zone handling (TZID, UTC) is left to golang-ical.
//   - All-day events are detected from the DTSTART value format.
//   - UID and SUMMARY are TEXT values decoded by golang-ical; the
//     RecurrenceIndex decodes UIDs the same way so the two can be joined.
//
// Any event the parser cannot read aborts the whole parse.
func ParseDocument(body []byte) (model.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return model.Document{}, fmt.Errorf("%w: empty ICS body", ErrMalformedDocument)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return model.Document{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	vevents := cal.Events()
	doc := model.Document{Events: make([]model.Event, 0, len(vevents))}
	for i, ve := range vevents {
		ev, err := parseVEvent(ve)
		if err != nil {
			return model.Document{}, fmt.Errorf("%w: event %d: %v", ErrMalformedDocument, i+1, err)
		}
		doc.Events = append(doc.Events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(doc.Events))
	return doc, nil
}

func parseVEvent(ve *ical.VEvent) (model.Event, error) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil {
		return out, fmt.Errorf("uid %q: missing DTSTART", out.UID)
	}
	out.AllDay = isDateValue(dtStartProp)

	var err error
	if out.AllDay {
		out.Start, err = ve.GetAllDayStartAt()
	} else {
		out.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return out, fmt.Errorf("uid %q: DTSTART: %w", out.UID, err)
	}

	var end time.Time
	if out.AllDay {
		end, err = ve.GetAllDayEndAt()
	} else {
		end, err = ve.GetEndAt()
	}
	if err != nil {
		// No usable DTEND: treat the event as instantaneous.
		end = out.Start
	}
	out.End = end

	return out, nil
}

// isDateValue reports VALUE=DATE, or a value with no time part.
func isDateValue(p *ical.IANAProperty) bool {
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}
