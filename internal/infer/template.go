package infer

import (
	"strings"

	"github.com/yourorg/apiscout/pkg/types"
)

// Token is one segment of a template: a literal or a typed placeholder.
type Token struct {
	Literal string
	Class   SegmentClass
}

func (t Token) String() string {
	if t.Class == Literal {
		return t.Literal
	}
	return t.Class.Placeholder()
}

// Generalize replaces every non-literal segment with its placeholder.
// Empty segments are dropped.
func Generalize(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if c := ClassifySegment(seg); c != Literal {
			parts = append(parts, c.Placeholder())
			continue
		}
		parts = append(parts, seg)
	}
	return "/" + strings.Join(parts, "/")
}

// ParseTemplate splits a template path into tokens.
func ParseTemplate(template string) []Token {
	segs := types.SplitPath(template)
	tokens := make([]Token, len(segs))
	for i, seg := range segs {
		tokens[i] = Token{Literal: seg, Class: placeholderClass(seg)}
	}
	return tokens
}

func placeholderClass(seg string) SegmentClass {
	for _, c := range []SegmentClass{Int, Float, UUID} {
		if seg == c.Placeholder() {
			return c
		}
	}
	return Literal
}

// Placeholders counts the typed tokens.
func Placeholders(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if t.Class != Literal {
			n++
		}
	}
	return n
}

// Matches reports whether path is an instance of template. Segment counts
// must agree, literals must be equal and placeholders must satisfy their
// class.
func Matches(path, template string) bool {
	return matchTokens(types.SplitPath(path), ParseTemplate(template))
}

func matchTokens(segments []string, tokens []Token) bool {
	if len(segments) != len(tokens) {
		return false
	}
	for i, tok := range tokens {
		if tok.Class == Literal {
			if segments[i] != tok.Literal {
				return false
			}
			continue
		}
		if !matchesClass(segments[i], tok.Class) {
			return false
		}
	}
	return true
}
