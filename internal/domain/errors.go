package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the core can surface to a user.
type ErrorKind string

// Extraction failures.
const (
	KindFetch             ErrorKind = "fetch_error"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindEmptyContent      ErrorKind = "empty_content"
	KindParse             ErrorKind = "parse_error"
)

// Synthesis failures.
const (
	KindEmptyQueue          ErrorKind = "empty_queue"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindProviderRateLimited ErrorKind = "provider_rate_limited"
	KindMalformedResponse   ErrorKind = "malformed_response"
)

// KindStore is an unexpected persistence failure.
const KindStore ErrorKind = "store_error"

// Category groups error kinds by the component that produces them.
type Category string

const (
	CategoryExtraction Category = "extraction"
	CategorySynthesis  Category = "synthesis"
	CategoryStore      Category = "store"
	CategoryUnknown    Category = "unknown"
)

// Category returns the group k belongs to.
func (k ErrorKind) Category() Category {
	switch k {
	case KindFetch, KindUnsupportedFormat, KindEmptyContent, KindParse:
		return CategoryExtraction
	case KindEmptyQueue, KindProviderUnavailable, KindProviderRateLimited, KindMalformedResponse:
		return CategorySynthesis
	case KindStore:
		return CategoryStore
	default:
		return CategoryUnknown
	}
}

// Error is the typed failure used across the extractor, store and synthesizer.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrFetch               = &Error{Kind: KindFetch}
	ErrUnsupportedFormat   = &Error{Kind: KindUnsupportedFormat}
	ErrEmptyContent        = &Error{Kind: KindEmptyContent}
	ErrParse               = &Error{Kind: KindParse}
	ErrEmptyQueue          = &Error{Kind: KindEmptyQueue}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrProviderRateLimited = &Error{Kind: KindProviderRateLimited}
	ErrMalformedResponse   = &Error{Kind: KindMalformedResponse}
	ErrStore               = &Error{Kind: KindStore}
)

// NewError builds an *Error. err may be nil.
func NewError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
