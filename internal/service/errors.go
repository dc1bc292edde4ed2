package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrDecode     = errors.New("image could not be decoded")
)

// ValidationError names the rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PermissionError names the denied action for an authenticated caller.
type PermissionError struct {
	Action Action
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Action, e.Reason)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermission
}

// NotFoundError hides whether a resource never existed or is no longer reachable.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type DecodeError struct {
	ImageID string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image %s could not be decoded: %v", e.ImageID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
