package ics

import (
	"fmt"
	"strings"

	appLog "icsfilter/internal/log"
)

// IndexConfig controls how the recurrence index is built.
type IndexConfig struct {
	// StrictRRule rejects documents whose RRULE values rrule-go cannot parse.
	StrictRRule bool
}

type recurrence struct {
	line    string
	present bool
}

// RecurrenceIndex maps event UIDs to their raw RRULE content line. It is
// built once per document and never modified afterwards.
type RecurrenceIndex struct {
	rules map[string]recurrence
}

// Len returns the number of indexed UIDs.
func (ix *RecurrenceIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.rules)
}

// Recurring returns the number of indexed UIDs that carry an RRULE.
func (ix *RecurrenceIndex) Recurring() int {
	if ix == nil {
		return 0
	}
	n := 0
	for _, r := range ix.rules {
		if r.present {
			n++
		}
	}
	return n
}

// Rule returns the RRULE line (prefix included, no terminator) recorded for
// uid. present is false when the event does not recur. An unknown uid is an
// ErrIntegrityMismatch.
func (ix *RecurrenceIndex) Rule(uid string) (line string, present bool, err error) {
	if ix == nil {
		return "", false, fmt.Errorf("%w: uid %q: index is nil", ErrIntegrityMismatch, uid)
	}
	r, ok := ix.rules[uid]
	if !ok {
		return "", false, fmt.Errorf("%w: uid %q not indexed", ErrIntegrityMismatch, uid)
	}
	return r.line, r.present, nil
}

type scanState int

const (
	stateOutside scanState = iota
	stateInside
)

// eventBlock is the per-VEVENT working state of the scanner.
type eventBlock struct {
	startLine int
	depth     int // nesting level of sub-components such as VALARM
	uid       string
	hasUID    bool
	rule      string
	hasRule   bool
}

// BuildRecurrenceIndex scans the raw document and records, for every VEVENT
// block, its UID and optional RRULE line. The structured parser does not
// carry RRULE through, so this index is how it survives the round trip.
func BuildRecurrenceIndex(body []byte, cfg IndexConfig) (*RecurrenceIndex, error) {
	ix := &RecurrenceIndex{rules: make(map[string]recurrence)}

	state := stateOutside
	var blk eventBlock

	for cl := range contentLines(strings.Lines(string(body))) {
		switch state {
		case stateOutside:
			if v, ok := propertyIs(cl.text, "BEGIN"); ok && strings.EqualFold(v, "VEVENT") {
				blk = eventBlock{startLine: cl.lineNo}
				state = stateInside
				continue
			}
			if v, ok := propertyIs(cl.text, "END"); ok && strings.EqualFold(v, "VEVENT") {
				return nil, fmt.Errorf("%w: line %d: END:VEVENT outside an event block", ErrMalformedDocument, cl.lineNo)
			}

		case stateInside:
			if v, ok := propertyIs(cl.text, "BEGIN"); ok {
				if strings.EqualFold(v, "VEVENT") {
					return nil, fmt.Errorf("%w: line %d: nested BEGIN:VEVENT", ErrMalformedDocument, cl.lineNo)
				}
				blk.depth++
				continue
			}
			if v, ok := propertyIs(cl.text, "END"); ok {
				if blk.depth > 0 {
					blk.depth--
					continue
				}
				if !strings.EqualFold(v, "VEVENT") {
					return nil, fmt.Errorf("%w: line %d: END:%s inside event block", ErrMalformedDocument, cl.lineNo, v)
				}
				if !blk.hasUID {
					return nil, fmt.Errorf("%w: line %d: event block has no UID", ErrMalformedDocument, cl.lineNo)
				}
				ix.commit(blk)
				state = stateOutside
				continue
			}
			if blk.depth > 0 {
				continue
			}
			if uid, ok := identifierOf(cl.text); ok {
				if blk.hasUID {
					return nil, fmt.Errorf("%w: line %d: second UID in event block", ErrMalformedDocument, cl.lineNo)
				}
				blk.uid, blk.hasUID = uid, true
				continue
			}
			if v, ok := propertyIs(cl.text, "RRULE"); ok {
				if blk.hasRule {
					return nil, fmt.Errorf("%w: line %d: second RRULE in event block", ErrMalformedDocument, cl.lineNo)
				}
				if cfg.StrictRRule {
					if err := ValidateRule(v); err != nil {
						return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedDocument, cl.lineNo, err)
					}
				}
				blk.rule, blk.hasRule = cl.text, true
			}
		}
	}

	if state == stateInside {
		return nil, fmt.Errorf("%w: line %d: event block is not terminated", ErrMalformedDocument, blk.startLine)
	}

	appLog.Debug("recurrence index built", "uids", ix.Len(), "recurring", ix.Recurring())
	return ix, nil
}

// commit stores a finished block. Blocks sharing a UID (RECURRENCE-ID
// overrides) never erase a rule recorded by an earlier block.
func (ix *RecurrenceIndex) commit(blk eventBlock) {
	if prev, ok := ix.rules[blk.uid]; ok && prev.present && !blk.hasRule {
		return
	}
	ix.rules[blk.uid] = recurrence{line: blk.rule, present: blk.hasRule}
}
