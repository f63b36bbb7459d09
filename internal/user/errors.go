package user

import "errors"

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailExists      = errors.New("email already exists")
	ErrImageExists      = errors.New("image already exists for this user")
	ErrUnsupportedImage = errors.New("invalid file format, only JPEG, PNG, and GIF are allowed")
)

// ValidationError is a client input problem; Message is safe to return to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(msg string) error {
	return &ValidationError{Message: msg}
}
