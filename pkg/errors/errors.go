package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide whether a failure is fatal
// for the whole run or only for the item being processed.
type Kind string

const (
	// KindCommunication covers network/transport failures talking to the
	// registry or the platform.
	KindCommunication Kind = "COMMUNICATION_ERROR"
	// KindMalformedResponse means a collaborator answered with an unexpected shape.
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
	// KindRemoteFunction is a business error reported by the registry API.
	KindRemoteFunction Kind = "REMOTE_FUNCTION_ERROR"
	// KindRemoteAPI is a business error reported by the platform API.
	KindRemoteAPI Kind = "REMOTE_API_ERROR"
	// KindStorage is a staging persistence failure.
	KindStorage Kind = "STORAGE_ERROR"
	// KindUnexpected is the catch-all.
	KindUnexpected Kind = "UNEXPECTED_ERROR"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// Error constructors
func Communication(message string, err error) *AppError {
	return newError(KindCommunication, message, err)
}

func MalformedResponse(message string, err error) *AppError {
	return newError(KindMalformedResponse, message, err)
}

func RemoteFunction(code, message string) *AppError {
	return newError(KindRemoteFunction, fmt.Sprintf("%s: %s", code, message), nil)
}

func RemoteAPI(code, message string) *AppError {
	return newError(KindRemoteAPI, fmt.Sprintf("%s: %s", code, message), nil)
}

func Storage(message string, err error) *AppError {
	return newError(KindStorage, message, err)
}

func Unexpected(err error) *AppError {
	return newError(KindUnexpected, "unexpected error", err)
}

// KindOf returns the Kind of err, or KindUnexpected when err carries no
// AppError in its chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// Is reports whether err carries an AppError of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
