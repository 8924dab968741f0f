package ics

import "strings"

// calendar wraps VEVENT bodies into a CRLF-terminated VCALENDAR.
func calendar(events ...string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, ev := range events {
		b.WriteString(ev)
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

// vevent builds a VEVENT from content lines, terminating each with CRLF.
func vevent(lines ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VEVENT\r\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	b.WriteString("END:VEVENT\r\n")
	return b.String()
}

// logical returns the unfolded content lines of an ICS payload.
func logical(body []byte) []string {
	var out []string
	for cl := range contentLines(strings.Lines(string(body))) {
		out = append(out, cl.text)
	}
	return out
}
