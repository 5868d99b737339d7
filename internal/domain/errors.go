package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrValidation       = errors.New("validation error")
	ErrGalleryNotFound  = errors.New("gallery not found")
	ErrGalleryExists    = errors.New("gallery already exists")
	ErrFileTooLarge     = errors.New("file size exceeds maximum allowed")
	ErrExpiredSignature = errors.New("upload signature expired")
	ErrTransferFailed   = errors.New("video transfer failed")
)

func NewValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NewConfigurationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// RemoteServiceError is a non-success answer from the media host, or a
// transport failure while talking to it (StatusCode 0).
type RemoteServiceError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: media host unreachable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: media host returned HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// TransferError terminates a resumable upload session. The remote placeholder
// it was uploading into is left as-is.
type TransferError struct {
	Fingerprint string
	Offset      int64
	Size        int64
	Attempts    int
	Err         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s failed at %d/%d bytes after %d attempt(s): %v",
		e.Fingerprint, e.Offset, e.Size, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}
