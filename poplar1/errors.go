package poplar1

import (
	"errors"
	"fmt"
)

var (
	// ErrUncategorized is the single error kind surfaced for protocol failures.
	// Every error returned by the protocol operations wraps it.
	ErrUncategorized = errors.New("vdaf error")

	// ErrSketchVerification means the aggregators' combined sketch did not verify:
	// the report was malformed by its client or one of its shares was corrupted.
	ErrSketchVerification = fmt.Errorf("%w: sketch verification failed", ErrUncategorized)
)

func uncategorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUncategorized, fmt.Sprintf(format, args...))
}

// CodecErrorKind classifies decoding failures.
type CodecErrorKind int

const (
	// CodecUnexpectedValue is a malformed or out-of-range encoding.
	CodecUnexpectedValue CodecErrorKind = iota + 1
	// CodecOther wraps a lower-level error such as an integer conversion failure.
	CodecOther
	// CodecShortRead means the input ended early.
	CodecShortRead
	// CodecBytesLeftOver means the input had trailing data.
	CodecBytesLeftOver
)

func (k CodecErrorKind) String() string {
	switch k {
	case CodecUnexpectedValue:
		return "unexpected value"
	case CodecOther:
		return "other"
	case CodecShortRead:
		return "short read"
	case CodecBytesLeftOver:
		return "bytes left over"
	}
	return "unknown"
}

// CodecError is returned by every Decode function.
type CodecError struct {
	Kind CodecErrorKind
	Err  error
}

var (
	ErrCodecUnexpectedValue = &CodecError{Kind: CodecUnexpectedValue}
	ErrCodecOther           = &CodecError{Kind: CodecOther}
	ErrCodecShortRead       = &CodecError{Kind: CodecShortRead}
	ErrCodecBytesLeftOver   = &CodecError{Kind: CodecBytesLeftOver}
)

func (e *CodecError) Error() string {
	if e.Err == nil {
		return "codec error: " + e.Kind.String()
	}
	return fmt.Sprintf("codec error: %s: %v", e.Kind, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// Is matches any CodecError of the same kind, so errors.Is(err, ErrCodecUnexpectedValue) works.
func (e *CodecError) Is(target error) bool {
	t, ok := target.(*CodecError)
	return ok && t.Kind == e.Kind
}

func codecErrorf(kind CodecErrorKind, format string, args ...any) error {
	return &CodecError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
