package ics

import "errors"

var (
	// ErrMalformedDocument reports input that breaks the one-UID-per-VEVENT
	// block structure, or an event the parser cannot read.
	ErrMalformedDocument = errors.New("ics: malformed document")

	// ErrIntegrityMismatch reports a serialized UID that the recurrence
	// index does not know. The two scans disagreed on identifier extraction.
	ErrIntegrityMismatch = errors.New("ics: recurrence index integrity mismatch")

	// ErrAcquisition reports that the source document could not be obtained.
	ErrAcquisition = errors.New("ics: acquisition failed")
)
