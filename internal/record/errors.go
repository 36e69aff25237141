package record

import "fmt"

// FormatErrorKind classifies a FormatError.
type FormatErrorKind uint8

const (
	BadMagic FormatErrorKind = iota + 1
	VersionMismatch
	CrcMismatch
	UnsupportedValueType
)

func (k FormatErrorKind) String() string {
	switch k {
	case BadMagic:
		return "bad magic"
	case VersionMismatch:
		return "version mismatch"
	case CrcMismatch:
		return "crc mismatch"
	case UnsupportedValueType:
		return "unsupported value type"
	default:
		return "unknown"
	}
}

// FormatError reports a journal that is not well formed, or a value that
// cannot be represented in it.
//
// Offset is the absolute file offset of the offending header or frame, or -1
// when the error is not tied to a position in the file.
type FormatError struct {
	Kind   FormatErrorKind
	Offset int64
	Detail string
}

func (e *FormatError) Error() string {
	msg := "daybreak: " + e.Kind.String()
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any FormatError of the same kind, so errors.Is(err, ErrCRCMismatch)
// works regardless of offset and detail.
func (e *FormatError) Is(target error) bool {
	t, ok := target.(*FormatError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrBadMagic             = &FormatError{Kind: BadMagic, Offset: -1}
	ErrVersionMismatch      = &FormatError{Kind: VersionMismatch, Offset: -1}
	ErrCRCMismatch          = &FormatError{Kind: CrcMismatch, Offset: -1}
	ErrUnsupportedValueType = &FormatError{Kind: UnsupportedValueType, Offset: -1}
)

// Unsupported builds an UnsupportedValueType error for a value of the given type.
func Unsupported(v any) error {
	return &FormatError{Kind: UnsupportedValueType, Offset: -1, Detail: fmt.Sprintf("%T", v)}
}
