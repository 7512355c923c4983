package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrTransferAborted is returned by SendFile when the engine closed mid-file.
	ErrTransferAborted = errors.New("transfer aborted")

	// ErrUnknownRecord is returned for a wire record with an unrecognised tag.
	ErrUnknownRecord = errors.New("unknown record type")

	// ErrMalformedRecord is returned for a record whose payload fails validation.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrEngineClosed is returned by Enqueue once the engine was closed.
	ErrEngineClosed = errors.New("transfer engine closed")
)

// TransferError records the operation and file a failure happened in.
// Details locates it further, such as the chunk being sent.
type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	op := e.Op
	if e.File != "" {
		op += " " + e.File
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

// WrapError is NewFileError with details attached.
func WrapError(op, file string, err error, details string) *TransferError {
	return &TransferError{Op: op, File: file, Err: err, Details: details}
}
