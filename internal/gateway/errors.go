package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrCredentialUnavailable is returned when the credential wait policy is
// "fail" and no credential arrived in time.
var ErrCredentialUnavailable = errors.New("no credential became available before the wait timed out")

// ErrorKind classifies a gateway failure.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNetwork
	KindUnauthorized
	KindValidation
	KindServer
	KindSessionExpired
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindSessionExpired:
		return "session_expired"
	default:
		return "other"
	}
}

// Kind classifies err. Wrapped errors are unwrapped.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		network    *NetworkError
		unauth     *UnauthorizedError
		validation *ValidationError
		server     *ServerError
		expired    *SessionExpiredError
	)

	switch {
	case errors.As(err, &expired):
		return KindSessionExpired
	case errors.As(err, &unauth):
		return KindUnauthorized
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &server):
		return KindServer
	case errors.As(err, &network):
		return KindNetwork
	default:
		return KindOther
	}
}

// ErrorSource points at the part of a request that failed a business rule.
type ErrorSource struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// apiErrorBody is the error envelope returned by the API.
type apiErrorBody struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	ErrorSources []ErrorSource `json:"errorSources"`
}

// NetworkError indicates that no response was received.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Status() (int, string) {
	return http.StatusBadGateway, "upstream unreachable"
}

// UnauthorizedError indicates the API rejected the credential (HTTP 401).
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Message
}

func (e *UnauthorizedError) Status() (int, string) {
	return http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized)
}

// SessionExpiredError indicates the credential was rejected and could not be
// refreshed. The session has been cleared: the caller must authenticate again.
type SessionExpiredError struct {
	Cause error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause == nil {
		return "session expired"
	}
	return fmt.Sprintf("session expired: %v", e.Cause)
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Cause
}

func (e *SessionExpiredError) Status() (int, string) {
	return http.StatusUnauthorized, "Session expired"
}

// ValidationError is a 4xx response other than 401: the request broke a
// business rule or referenced something that does not exist.
type ValidationError struct {
	StatusCode int
	Message    string
	Sources    []ErrorSource
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "request rejected (%d)", e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, s := range e.Sources {
		fmt.Fprintf(&b, "; %s: %s", s.Path, s.Message)
	}
	return b.String()
}

func (e *ValidationError) Status() (int, string) {
	return e.StatusCode, e.Message
}

// ServerError is a 5xx response.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

func (e *ServerError) Status() (int, string) {
	return e.StatusCode, e.Message
}

// statusError converts a non-2xx response into the matching typed error.
func statusError(statusCode int, body []byte) error {
	var envelope apiErrorBody
	// error bodies are best effort: non-JSON bodies just lose their detail
	_ = json.Unmarshal(body, &envelope)

	message := envelope.Message
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		return &UnauthorizedError{Message: message}
	case statusCode >= 400 && statusCode < 500:
		return &ValidationError{
			StatusCode: statusCode,
			Message:    message,
			Sources:    envelope.ErrorSources,
		}
	case statusCode >= 500:
		return &ServerError{StatusCode: statusCode, Message: message}
	default:
		return fmt.Errorf("unexpected response status %d", statusCode)
	}
}
