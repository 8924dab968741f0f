package ics

import (
	"iter"
	"strings"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"
)

const (
	crlf = "\r\n"

	// maxLineOctets is the RFC 5545 content line limit, excluding CRLF.
	maxLineOctets = 75
)

// contentLine is one unfolded iCalendar content line together with the
// physical lines it was built from.
type contentLine struct {
	text     string   // unfolded, terminator stripped
	physical []string // original lines, terminators included
	lineNo   int      // 1-based number of the first physical line
}

// contentLines unfolds a sequence of physical lines. A physical line that
// starts with a space or a tab continues the previous one.
func contentLines(lines iter.Seq[string]) iter.Seq[contentLine] {
	return func(yield func(contentLine) bool) {
		var cur contentLine
		have := false
		n := 0
		for raw := range lines {
			n++
			if have && isContinuation(raw) {
				cur.text += trimTerminator(raw)[1:]
				cur.physical = append(cur.physical, raw)
				continue
			}
			if have && !yield(cur) {
				return
			}
			cur = contentLine{text: trimTerminator(raw), physical: []string{raw}, lineNo: n}
			have = true
		}
		if have {
			yield(cur)
		}
	}
}

func isContinuation(raw string) bool {
	return raw != "" && (raw[0] == ' ' || raw[0] == '\t')
}

func trimTerminator(raw string) string {
	return strings.TrimRight(raw, "\r\n")
}

// terminatorOf returns the line ending used by raw, defaulting to CRLF.
func terminatorOf(raw string) string {
	switch {
	case strings.HasSuffix(raw, crlf):
		return crlf
	case strings.HasSuffix(raw, "\n"):
		return "\n"
	default:
		return crlf
	}
}

// splitProperty splits "NAME;PARAM=x:value" into name and value. Colons
// inside quoted parameter values do not end the name part.
func splitProperty(text string) (name, value string, ok bool) {
	inQuote := false
	nameEnd := -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if nameEnd < 0 && !inQuote {
				nameEnd = i
			}
		case ':':
			if inQuote {
				continue
			}
			if nameEnd < 0 {
				nameEnd = i
			}
			return text[:nameEnd], text[i+1:], true
		}
	}
	return "", "", false
}

// propertyIs reports whether text is a property called name, and returns
// its value.
func propertyIs(text, name string) (string, bool) {
	n, v, ok := splitProperty(text)
	if !ok || !strings.EqualFold(n, name) {
		return "", false
	}
	return v, true
}

// identifierOf is the single UID normalization shared by the indexer and
// the serializer. UID is a TEXT value, so escapes are decoded the same way
// golang-ical decodes them when parsing.
func identifierOf(text string) (string, bool) {
	v, ok := propertyIs(text, "UID")
	if !ok {
		return "", false
	}
	return ical.FromText(v), true
}

// fold splits a content line into physical lines of at most maxLineOctets,
// never cutting a UTF-8 sequence. The result carries no final terminator.
func fold(text, term string) string {
	if len(text) <= maxLineOctets {
		return text
	}
	var b strings.Builder
	limit := maxLineOctets
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		b.WriteString(text[:cut])
		b.WriteString(term)
		b.WriteString(" ")
		text = text[cut:]
		// Continuation lines spend one octet on the leading space.
		limit = maxLineOctets - 1
	}
	b.WriteString(text)
	return b.String()
}
