package errs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Failure is the error body the relay attaches to a non-success response.
type Failure struct {
	Name         string `json:"name"`
	Message      string `json:"message,omitempty"`
	RetryDelayMs int64  `json:"retryDelay,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// FromResponse normalises a failed relay response for action into an *Error.
//
// Named failures the client knows keep their code. Anything else is mapped by
// status, and unrecognised names are logged with their detail before being
// collapsed into CodeUnknown.
func FromResponse(log *slog.Logger, action string, status int, f Failure) *Error {
	e := &Error{Action: action, Status: status, Message: f.Message, Limit: f.Limit}
	if f.Name != "" && Known(Code(f.Name)) {
		e.Code = Code(f.Name)
		if e.Code == CodeTooManyRequests {
			e.RetryDelay = msToDuration(f.RetryDelayMs)
		}
		return e
	}

	switch status {
	case http.StatusTooManyRequests:
		e.Code = CodeTooManyRequests
		e.RetryDelay = msToDuration(f.RetryDelayMs)
		return e
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		e.Code = CodeServiceUnavailable
		return e
	case http.StatusGatewayTimeout:
		e.Code = CodeTimeout
		return e
	case http.StatusUnauthorized:
		e.Code = CodeUserNotSignedIn
		return e
	case http.StatusInternalServerError:
		e.Code = CodeInternalServerError
		return e
	}

	if log == nil {
		log = slog.Default()
	}
	log.Error("unrecognised relay failure",
		"action", action, "status", status, "name", f.Name, "message", f.Message)
	e.Code = CodeUnknown
	if e.Message == "" {
		e.Message = f.Name
	}
	return e
}

// Normalize converts arbitrary errors at a public boundary into an *Error.
// Values that already unwrap to *Error are returned unchanged.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeTimeout, err, "")
	case errors.Is(err, context.Canceled):
		return Wrap(CodeCanceled, err, "")
	}
	return Wrap(CodeServiceUnavailable, err, "")
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
