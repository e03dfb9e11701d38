package navigator

import (
	"errors"
	"fmt"
)

// Kind classifies why a navigation step failed. Every kind is recoverable one level up.
type Kind string

const (
	KindNone               Kind = ""
	KindNotAURL            Kind = "NotAURL"
	KindContentMismatch    Kind = "ContentMismatch"
	KindContentNotFound    Kind = "ContentNotFound"
	KindContentAlreadySeen Kind = "ContentAlreadySeen"
	KindTooManySteps       Kind = "TooManySteps"
)

const ExhaustedMessage = "I couldn't find a PDF document within a reasonable number of hops."

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func IsKind(err error, kind Kind) bool {
	var navErr *Error
	return errors.As(err, &navErr) && navErr.Kind == kind
}

// KindOf returns the failure kind carried by err, or ContentNotFound for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var navErr *Error
	if errors.As(err, &navErr) {
		return navErr.Kind
	}
	return KindContentNotFound
}
