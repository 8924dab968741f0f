package ics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestContentLines(t *testing.T) {
	in := "A:1\r\nB:2\r\n 3\r\n\t4\r\nC:5"
	var got []contentLine
	for cl := range contentLines(strings.Lines(in)) {
		got = append(got, cl)
	}

	want := []contentLine{
		{text: "A:1", physical: []string{"A:1\r\n"}, lineNo: 1},
		{text: "B:234", physical: []string{"B:2\r\n", " 3\r\n", "\t4\r\n"}, lineNo: 2},
		{text: "C:5", physical: []string{"C:5"}, lineNo: 5},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(contentLine{})); diff != "" {
		t.Errorf("contentLines mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitProperty(t *testing.T) {
	tests := []struct {
		in        string
		name, val string
		ok        bool
	}{
		{"UID:abc", "UID", "abc", true},
		{"UID;X-PARAM=1:abc:def", "UID", "abc:def", true},
		{`DTSTART;TZID="Odd:Zone":20240101T090000`, "DTSTART", "20240101T090000", true},
		{"no colon here", "", "", false},
	}
	for _, tt := range tests {
		name, val, ok := splitProperty(tt.in)
		if name != tt.name || val != tt.val || ok != tt.ok {
			t.Errorf("splitProperty(%q) = %q, %q, %v", tt.in, name, val, ok)
		}
	}
}

func TestIdentifierOf(t *testing.T) {
	if uid, ok := identifierOf("UID:abc@example.com"); !ok || uid != "abc@example.com" {
		t.Errorf("got %q, %v", uid, ok)
	}
	if uid, ok := identifierOf("uid:lower"); !ok || uid != "lower" {
		t.Errorf("case-insensitive name: got %q, %v", uid, ok)
	}
	if _, ok := identifierOf("UIDX:abc"); ok {
		t.Error("UIDX must not be treated as UID")
	}
}

func TestFold(t *testing.T) {
	short := "RRULE:FREQ=WEEKLY"
	if got := fold(short, crlf); got != short {
		t.Errorf("short line changed: %q", got)
	}

	long := "RRULE:FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR;BYHOUR=9,10,11,12,13,14,15,16,17;UNTIL=20301231T000000Z"
	folded := fold(long, crlf)
	physical := strings.Split(folded, crlf)
	for i, p := range physical {
		if len(p) > maxLineOctets {
			t.Errorf("physical line %d has %d octets", i, len(p))
		}
		if i > 0 && !strings.HasPrefix(p, " ") {
			t.Errorf("continuation line %d lacks leading space: %q", i, p)
		}
	}
	if got := logical([]byte(folded + crlf)); len(got) != 1 || got[0] != long {
		t.Errorf("unfold(fold(x)) = %q", got)
	}

	multibyte := "SUMMARY:" + strings.Repeat("é", 60)
	for _, p := range strings.Split(fold(multibyte, crlf), crlf) {
		if !utf8.ValidString(p) {
			t.Errorf("fold split a UTF-8 sequence: %q", p)
		}
	}
}
