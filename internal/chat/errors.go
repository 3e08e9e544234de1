package chat

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of a failed send.
type ErrorKind string

const (
	// KindConfiguration means no usable endpoint could be resolved.
	KindConfiguration ErrorKind = "configuration"

	// KindTimeout means the request exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindHTTP means the remote service answered with a non-2xx status.
	KindHTTP ErrorKind = "http"

	// KindMalformedResponse means the response body was not valid JSON.
	KindMalformedResponse ErrorKind = "malformed_response"

	// KindEmptyResponse means the response normalized to blank text.
	KindEmptyResponse ErrorKind = "empty_response"

	// KindTransport means the request never produced a response.
	KindTransport ErrorKind = "transport"

	// KindCanceled means the caller abandoned the request.
	KindCanceled ErrorKind = "canceled"
)

// Collaborator gate errors. These are returned before any dispatch happens.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrBusy            = errors.New("a request is already in flight for this session")
	ErrSessionNotFound = errors.New("session not found")
)

const (
	msgNotConfigured = "Langflow API endpoint not configured. Please check the setup instructions."
	msgTimeout       = "Request timeout. Please try again."
	msgGeneric       = "Sorry, I encountered an error. Please try again later."
)

// Error is a typed send failure. The transcript is never modified when one is
// returned.
type Error struct {
	Kind    ErrorKind
	Message string

	// Populated for KindHTTP.
	StatusCode int
	StatusText string
	Body       string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the text a chat surface shows in place of a reply.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindConfiguration:
		return msgNotConfigured
	case KindTimeout:
		return msgTimeout
	case KindHTTP:
		if e.StatusCode != 0 {
			return fmt.Sprintf("Sorry, I encountered an error (HTTP %d %s). Please try again later.", e.StatusCode, e.StatusText)
		}
		return msgGeneric
	default:
		return msgGeneric
	}
}

// NewError creates a new send error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithStatus records the HTTP status and captured body.
func (e *Error) WithStatus(code int, text, body string) *Error {
	e.StatusCode = code
	e.StatusText = text
	e.Body = body
	return e
}

// ErrConfiguration creates a configuration error.
func ErrConfiguration(message string) *Error {
	return NewError(KindConfiguration, message)
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *Error {
	return NewError(KindTimeout, message)
}

// ErrHTTP creates an error for a non-2xx response.
func ErrHTTP(code int, text, body string) *Error {
	return NewError(KindHTTP, fmt.Sprintf("API request failed: %d %s", code, text)).
		WithStatus(code, text, body)
}

// ErrMalformedResponse creates a malformed response error.
func ErrMalformedResponse(message string) *Error {
	return NewError(KindMalformedResponse, message)
}

// ErrEmptyResponse creates an empty response error.
func ErrEmptyResponse(message string) *Error {
	return NewError(KindEmptyResponse, message)
}

// KindOf returns the kind of a send error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return ""
}

// UserMessage returns the text to show for any error returned by Session.Send.
func UserMessage(err error) string {
	var chatErr *Error
	switch {
	case errors.As(err, &chatErr):
		return chatErr.UserMessage()
	case errors.Is(err, ErrBusy):
		return "Please wait for the current reply before sending another message."
	case errors.Is(err, ErrEmptyMessage):
		return "Please enter a message."
	default:
		return msgGeneric
	}
}
