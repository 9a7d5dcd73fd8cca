package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLoad matches every *LoadError.
	ErrLoad = errors.New("load failed")
	// ErrLoadTimeout matches a *LoadError of kind KindTimeout.
	ErrLoadTimeout = errors.New("load timed out")
)

// Kind classifies why a load failed.
type Kind int

const (
	KindSource Kind = iota + 1
	KindFormat
	KindMissingColumn
	KindParseDate
	KindParseValue
	KindEmpty
	KindTimeout
	KindLocalityConflict
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFormat:
		return "format"
	case KindMissingColumn:
		return "missing column"
	case KindParseDate:
		return "parse date"
	case KindParseValue:
		return "parse value"
	case KindEmpty:
		return "empty"
	case KindTimeout:
		return "timeout"
	case KindLocalityConflict:
		return "locality conflict"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// LoadError is the only error type Load returns. Row is 1-based and counts
// the header line, so it matches a line number in a CSV source; zero means
// the error is not tied to a row.
type LoadError struct {
	Kind   Kind
	Source string
	Column string
	Row    int
	Err    error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "load %s: %s", e.Source, e.Kind)
	if e.Column != "" {
		fmt.Fprintf(&b, ": column %q", e.Column)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, ": row %d", e.Row)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool {
	switch target {
	case ErrLoad:
		return true
	case ErrLoadTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

func loadErr(kind Kind, source string, err error) *LoadError {
	return &LoadError{Kind: kind, Source: source, Err: err}
}
