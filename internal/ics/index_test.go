package ics

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildRecurrenceIndex(t *testing.T) {
	body := calendar(
		vevent("UID:a@example.com", "SUMMARY:Team Call", "RRULE:FREQ=WEEKLY"),
		vevent("UID:b@example.com", "SUMMARY:Lunch"),
		vevent("uid:c@example.com", "rrule:FREQ=DAILY;COUNT=3"),
	)

	ix, err := BuildRecurrenceIndex(body, IndexConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]recurrence{
		"a@example.com": {line: "RRULE:FREQ=WEEKLY", present: true},
		"b@example.com": {},
		"c@example.com": {line: "rrule:FREQ=DAILY;COUNT=3", present: true},
	}
	if diff := cmp.Diff(want, ix.rules, cmp.AllowUnexported(recurrence{})); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
	if ix.Len() != 3 || ix.Recurring() != 2 {
		t.Errorf("Len=%d Recurring=%d, want 3 and 2", ix.Len(), ix.Recurring())
	}
}

func TestBuildRecurrenceIndex_LFTerminators(t *testing.T) {
	body := []byte("BEGIN:VCALENDAR\nBEGIN:VEVENT\nUID:lf-1\nRRULE:FREQ=MONTHLY\nEND:VEVENT\nEND:VCALENDAR\n")

	ix, err := BuildRecurrenceIndex(body, IndexConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line, present, err := ix.Rule("lf-1")
	if err != nil || !present || line != "RRULE:FREQ=MONTHLY" {
		t.Errorf("Rule(lf-1) = %q, %v, %v", line, present, err)
	}
}

func TestBuildRecurrenceIndex_EscapedUID(t *testing.T) {
	body := calendar(vevent(`UID:a\,b`, "SUMMARY:Call", "RRULE:FREQ=WEEKLY"))

	ix, err := BuildRecurrenceIndex(body, IndexConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line, present, err := ix.Rule("a,b")
	if err != nil || !present || line != "RRULE:FREQ=WEEKLY" {
		t.Errorf("Rule(a,b) = %q, %v, %v", line, present, err)
	}
}

func TestBuildRecurrenceIndex_FoldedLines(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT\r\n" +
			"UID:folded-\r\n identifier\r\n" +
			"RRULE:FREQ=WEEKLY;BYDAY=MO,\r\n TU\r\n" +
			"END:VEVENT\r\n",
	)

	ix, err := BuildRecurrenceIndex(body, IndexConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line, present, err := ix.Rule("folded-identifier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !present || line != "RRULE:FREQ=WEEKLY;BYDAY=MO,TU" {
		t.Errorf("got %q (present=%v)", line, present)
	}
}

func TestBuildRecurrenceIndex_IgnoresNestedComponents(t *testing.T) {
	body := calendar(vevent(
		"UID:outer",
		"BEGIN:VALARM",
		"UID:alarm-uid",
		"ACTION:DISPLAY",
		"END:VALARM",
		"RRULE:FREQ=YEARLY",
	))

	ix, err := BuildRecurrenceIndex(body, IndexConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := ix.Rule("alarm-uid"); !errors.Is(err, ErrIntegrityMismatch) {
		t.Errorf("alarm UID should not be indexed, err=%v", err)
	}
	if line, present, _ := ix.Rule("outer"); !present || line != "RRULE:FREQ=YEARLY" {
		t.Errorf("outer rule = %q (present=%v)", line, present)
	}
}

func TestBuildRecurrenceIndex_OverrideKeepsMasterRule(t *testing.T) {
	body := calendar(
		vevent("UID:series", "RRULE:FREQ=WEEKLY"),
		vevent("UID:series", "RECURRENCE-ID:20240117T090000Z"),
	)

	ix, err := BuildRecurrenceIndex(body, IndexConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line, present, _ := ix.Rule("series"); !present || line != "RRULE:FREQ=WEEKLY" {
		t.Errorf("series rule = %q (present=%v)", line, present)
	}
}

func TestBuildRecurrenceIndex_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"missing uid", calendar(vevent("SUMMARY:No id"))},
		{"end outside block", []byte("BEGIN:VCALENDAR\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n")},
		{"nested vevent", calendar("BEGIN:VEVENT\r\nUID:x\r\n" + vevent("UID:y") + "END:VEVENT\r\n")},
		{"unterminated", []byte("BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:x\r\n")},
		{"second uid", calendar(vevent("UID:x", "UID:y"))},
		{"second rrule", calendar(vevent("UID:x", "RRULE:FREQ=DAILY", "RRULE:FREQ=WEEKLY"))},
		{"foreign end", []byte("BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:x\r\nEND:VCALENDAR\r\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := BuildRecurrenceIndex(tt.body, IndexConfig{})
			if !errors.Is(err, ErrMalformedDocument) {
				t.Fatalf("expected ErrMalformedDocument, got %v", err)
			}
			if ix != nil {
				t.Error("expected nil index on error")
			}
		})
	}
}

func TestBuildRecurrenceIndex_StrictRRule(t *testing.T) {
	body := calendar(vevent("UID:x", "RRULE:FREQ=SOMETIMES"))

	if _, err := BuildRecurrenceIndex(body, IndexConfig{}); err != nil {
		t.Fatalf("lenient mode should accept unknown rule, got %v", err)
	}
	if _, err := BuildRecurrenceIndex(body, IndexConfig{StrictRRule: true}); !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("strict mode: expected ErrMalformedDocument, got %v", err)
	}
}

func TestRecurrenceIndex_RuleUnknown(t *testing.T) {
	ix, err := BuildRecurrenceIndex(calendar(vevent("UID:known")), IndexConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := ix.Rule("unknown"); !errors.Is(err, ErrIntegrityMismatch) {
		t.Errorf("expected ErrIntegrityMismatch, got %v", err)
	}

	var nilIndex *RecurrenceIndex
	if _, _, err := nilIndex.Rule("known"); !errors.Is(err, ErrIntegrityMismatch) {
		t.Errorf("nil index: expected ErrIntegrityMismatch, got %v", err)
	}
}
