package guide

import (
	"errors"
	"fmt"
)

// Kind classifies a ParseError.
type Kind string

const (
	KindMissingTitle        Kind = "missing_title"
	KindMissingIntroduction Kind = "missing_introduction"
	KindMissingSections     Kind = "missing_sections"
	KindMissingSummary      Kind = "missing_summary"
	KindMissingQuiz         Kind = "missing_quiz"
	KindMalformedQuizItem   Kind = "malformed_quiz_item"
	KindValidationFailed    Kind = "validation_failed"
)

// ParseError is returned for every parse failure. Structural kinds mean the
// text did not match the chapter grammar; KindValidationFailed wraps a
// *ValidationError.
type ParseError struct {
	Kind     Kind
	Msg      string
	Fragment string // offending source text, if any
	Err      error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	s := "parse chapter: " + msg
	if e.Fragment != "" {
		s += fmt.Sprintf(" (%q)", e.Fragment)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches any ParseError of the same kind, so errors.Is(err, ErrMissingQuiz)
// works regardless of message.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

// Structural reports whether the failure is a grammar mismatch rather than
// a rejected record.
func (e *ParseError) Structural() bool {
	return e.Kind != KindValidationFailed
}

var (
	ErrMissingTitle        = &ParseError{Kind: KindMissingTitle}
	ErrMissingIntroduction = &ParseError{Kind: KindMissingIntroduction}
	ErrMissingSections     = &ParseError{Kind: KindMissingSections}
	ErrMissingSummary      = &ParseError{Kind: KindMissingSummary}
	ErrMissingQuiz         = &ParseError{Kind: KindMissingQuiz}
	ErrMalformedQuizItem   = &ParseError{Kind: KindMalformedQuizItem}
	ErrValidationFailed    = &ParseError{Kind: KindValidationFailed}
)

// KindOf returns the kind of the first ParseError in err's chain, or "".
func KindOf(err error) Kind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// FieldErrors returns the field-level errors carried by err, if any.
func FieldErrors(err error) []FieldError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Errors
	}
	return nil
}
