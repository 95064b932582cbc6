// Package record normalizes raw API fields into the values stored on attendees and assignments.
package record

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedReference is returned when a member reference does not carry an id segment.
var ErrMalformedReference = errors.New("malformed member reference")

// memberIDSegment is the position of the id once a reference is split on "/".
const memberIDSegment = 2

// Field is a raw sub-field of an API item. Implementations must tolerate
// being called on a nil receiver and report empty text for it.
type Field interface {
	Text() string
}

// Text joins the text of the given fields with single spaces and trims the
// result. A nil interface is skipped; a typed-nil field reports empty text
// itself. An empty result is reported as nil, never as a pointer to "".
func Text(fields ...Field) *string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != nil {
			parts = append(parts, f.Text())
		}
	}
	s := strings.TrimSpace(strings.Join(parts, " "))
	if s == "" {
		return nil
	}
	return &s
}

// MemberID extracts the member id from a reference like "/members/ID".
// A "scheme://" prefix is folded onto a leading slash, so "msr://members/ID/x"
// yields "ID" as well. An absent field yields nil without error.
func MemberID(field Field) (*string, error) {
	uri := Text(field)
	if uri == nil {
		return nil, nil
	}
	ref := *uri
	if _, rest, ok := strings.Cut(ref, "://"); ok {
		ref = "/" + rest
	}
	segments := strings.Split(ref, "/")
	if len(segments) <= memberIDSegment || segments[memberIDSegment] == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedReference, *uri)
	}
	id := segments[memberIDSegment]
	return &id, nil
}

// Value dereferences an optional text value, returning "" when absent.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
