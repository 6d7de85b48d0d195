package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication indicates the backend rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNetwork indicates the backend could not be reached or answered
	// with something that is not a usable response.
	ErrNetwork = errors.New("network failure")
)

// Default user-facing messages.
const (
	MessageLoginFailed  = "Login failed"
	MessageNetworkError = "Network error. Please check your connection and try again."
)

// Failure is the error returned by Login. Message is safe to display.
type Failure struct {
	Kind    error
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%v: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%v: %s", f.Kind, f.Message)
}

// Unwrap exposes the cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the failure kind sentinel.
func (f *Failure) Is(target error) bool {
	return target == f.Kind
}

func authenticationFailure(message string) *Failure {
	if message == "" {
		message = MessageLoginFailed
	}
	return &Failure{Kind: ErrAuthentication, Message: message}
}

func networkFailure(err error) *Failure {
	return &Failure{Kind: ErrNetwork, Message: MessageNetworkError, Err: err}
}

// UserMessage returns the user-displayable message carried by err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return MessageLoginFailed
}
