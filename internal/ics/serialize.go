package ics

import (
	"bytes"
	"fmt"
	"iter"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"icsfilter/internal/model"
)

// DefaultProdID names this tool in the PRODID of written calendars.
const DefaultProdID = "icsfilter"

// SerializeConfig controls calendar output.
type SerializeConfig struct {
	// ProdID is passed to golang-ical's NewCalendarFor. Defaults to DefaultProdID.
	ProdID string
	// Stamp is written as every event's DTSTAMP. Defaults to time.Now().
	Stamp time.Time
}

// Serialize writes doc as an iCalendar document and re-inserts each event's
// RRULE line from index directly after its UID line. Nothing is returned
// unless every UID was found in the index.
func Serialize(doc model.Document, index *RecurrenceIndex, cfg SerializeConfig) ([]byte, error) {
	cal := buildCalendar(doc, cfg)

	var buf bytes.Buffer
	if err := reinjectRules(&buf, strings.Lines(cal.Serialize(ical.WithNewLineWindows)), index); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildCalendar(doc model.Document, cfg SerializeConfig) *ical.Calendar {
	if cfg.ProdID == "" {
		cfg.ProdID = DefaultProdID
	}
	if cfg.Stamp.IsZero() {
		cfg.Stamp = time.Now()
	}

	cal := ical.NewCalendarFor(cfg.ProdID)
	for _, ev := range doc.Events {
		ve := cal.AddEvent(ev.UID)
		ve.SetDtStampTime(cfg.Stamp)
		if ev.Summary != "" {
			// Decoded text; golang-ical escapes TEXT values on output.
			ve.SetSummary(ev.Summary)
		}
		if ev.AllDay {
			ve.SetAllDayStartAt(ev.Start)
			ve.SetAllDayEndAt(ev.End)
		} else {
			ve.SetStartAt(ev.Start)
			ve.SetEndAt(ev.End)
		}
	}
	return cal
}

// reinjectRules copies lines to w verbatim and, after every UID content
// line, writes the indexed RRULE line for that UID.
func reinjectRules(w *bytes.Buffer, lines iter.Seq[string], index *RecurrenceIndex) error {
	for cl := range contentLines(lines) {
		for _, raw := range cl.physical {
			w.WriteString(raw)
		}

		uid, ok := identifierOf(cl.text)
		if !ok {
			continue
		}
		rule, present, err := index.Rule(uid)
		if err != nil {
			return fmt.Errorf("serialize line %d: %w", cl.lineNo, err)
		}
		if !present {
			continue
		}

		last := cl.physical[len(cl.physical)-1]
		term := terminatorOf(last)
		if !strings.HasSuffix(last, "\n") {
			// UID was the final line and had no terminator of its own.
			w.WriteString(term)
		}
		w.WriteString(fold(rule, term))
		w.WriteString(term)
	}
	return nil
}
