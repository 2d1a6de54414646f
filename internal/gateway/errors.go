package gateway

import (
	"errors"
	"fmt"
)

// ErrorCode classifies gateway failures.
type ErrorCode string

const (
	// CodeAuth means the credential was rejected by the network.
	CodeAuth ErrorCode = "auth_failed"
	// CodeUnavailable means the network could not be reached or the
	// request failed for a transient reason.
	CodeUnavailable ErrorCode = "unavailable"
	// CodeNotParticipant means the queried user is not in the channel.
	CodeNotParticipant ErrorCode = "not_participant"
	// CodeBadRequest means the request itself was malformed (unknown
	// chat, message already gone, and the like).
	CodeBadRequest ErrorCode = "bad_request"
)

// Error is a gateway failure with a machine-readable code.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a gateway error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// IsAuth reports whether err is a credential rejection.
func IsAuth(err error) bool {
	return hasCode(err, CodeAuth)
}

// IsNotParticipant reports whether err is an explicit "user is not in
// the channel" signal.
func IsNotParticipant(err error) bool {
	return hasCode(err, CodeNotParticipant)
}

func hasCode(err error, code ErrorCode) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Code == code
}
