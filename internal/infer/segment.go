package infer

import (
	"regexp"

	"github.com/google/uuid"
)

// SegmentClass is the inferred kind of one path segment.
type SegmentClass int

const (
	Literal SegmentClass = iota
	Int
	Float
	UUID
)

var (
	floatRe      = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)
	strictUUIDRe = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

func (c SegmentClass) String() string {
	switch c {
	case Int:
		return "int"
	case Float:
		return "float"
	case UUID:
		return "uuid"
	}
	return "literal"
}

// Placeholder is the template token for the class; literals have none.
func (c SegmentClass) Placeholder() string {
	if c == Literal {
		return ""
	}
	return "{" + c.String() + "}"
}

// ClassifySegment maps a segment to int, float, uuid or literal, checked in
// that order. A segment that misses the canonical uuid form but still
// parses as an identifier (braced, urn-prefixed or bare hex) is a uuid too.
func ClassifySegment(seg string) SegmentClass {
	switch {
	case isInt(seg):
		return Int
	case isFloat(seg):
		return Float
	case isStrictUUID(seg):
		return UUID
	}
	if _, err := uuid.Parse(seg); err == nil {
		return UUID
	}
	return Literal
}

func isInt(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isFloat(s string) bool {
	return floatRe.MatchString(s)
}

func isStrictUUID(s string) bool {
	return strictUUIDRe.MatchString(s)
}

// matchesClass is the predicate a segment must meet to fill a placeholder.
// Unlike ClassifySegment it accepts only the canonical uuid form.
func matchesClass(seg string, c SegmentClass) bool {
	switch c {
	case Int:
		return isInt(seg)
	case Float:
		return isFloat(seg)
	case UUID:
		return isStrictUUID(seg)
	}
	return false
}
