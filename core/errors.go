package core

import (
	"errors"
	"fmt"

	"github.com/0xRadioAc7iv/go-daybreak/internal/record"
)

var (
	ErrClosed = errors.New("daybreak: database closed")
)

// FormatError is returned when the journal file is malformed or a value can
// not be represented in it. Match a kind with errors.Is against the sentinels
// below.
type FormatError = record.FormatError

var (
	ErrBadMagic             = record.ErrBadMagic
	ErrVersionMismatch      = record.ErrVersionMismatch
	ErrCRCMismatch          = record.ErrCRCMismatch
	ErrUnsupportedValueType = record.ErrUnsupportedValueType
)

// WriterFault is returned once the writer gave up on a batch. The journal
// stays readable but accepts no writes until Reopen.
type WriterFault struct {
	Attempts int
	Err      error
}

func (f *WriterFault) Error() string {
	return fmt.Sprintf("daybreak: writer failed after %d attempts: %v", f.Attempts, f.Err)
}

func (f *WriterFault) Unwrap() error {
	return f.Err
}

// IsWriterFault reports whether err is or wraps a WriterFault.
func IsWriterFault(err error) bool {
	var fault *WriterFault
	return errors.As(err, &fault)
}
