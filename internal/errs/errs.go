package errs

import (
	"fmt"
	"time"
)

// Code identifies a failure.
type Code string

const (
	// Validation
	CodeDatabaseNameMissing   Code = "DatabaseNameMissing"
	CodeDatabaseNameTooLong   Code = "DatabaseNameTooLong"
	CodeItemIDMissing         Code = "ItemIdMissing"
	CodeItemIDTooLong         Code = "ItemIdTooLong"
	CodeItemMissing           Code = "ItemMissing"
	CodeItemTooLarge          Code = "ItemTooLarge"
	CodeItemInvalid           Code = "ItemInvalid"
	CodeOperationsMissing     Code = "OperationsMissing"
	CodeOperationsExceedLimit Code = "OperationsExceedLimit"
	CodeCommandNotRecognized  Code = "CommandNotRecognized"
	CodeUsernameMissing       Code = "UsernameMissing"
	CodePasswordMissing       Code = "PasswordMissing"
	CodeParamsInvalid         Code = "ParamsInvalid"

	// Conflict
	CodeItemAlreadyExists  Code = "ItemAlreadyExists"
	CodeItemUpdateConflict Code = "ItemUpdateConflict"
	CodeOperationsConflict Code = "OperationsConflict"

	// NotFound
	CodeItemDoesNotExist Code = "ItemDoesNotExist"
	CodeDatabaseNotOpen  Code = "DatabaseNotOpen"
	CodeDatabaseNotFound Code = "DatabaseNotFound"
	CodeUserNotFound     Code = "UserNotFound"

	// Auth
	CodeUserNotSignedIn            Code = "UserNotSignedIn"
	CodeUsernameOrPasswordMismatch Code = "UsernameOrPasswordMismatch"
	CodeKeyNotFound                Code = "KeyNotFound"
	CodeKeyNotValid                Code = "KeyNotValid"
	CodeKeyMaterialInvalid         Code = "KeyMaterialInvalid"
	CodeSeedRequestDenied          Code = "SeedRequestDenied"
	CodeGrantDeclined              Code = "GrantDeclined"
	CodeDatabaseIsReadOnly         Code = "DatabaseIsReadOnly"

	// Availability
	CodeServiceUnavailable  Code = "ServiceUnavailable"
	CodeTimeout             Code = "Timeout"
	CodeConnectTimeout      Code = "ConnectTimeout"
	CodeInternalServerError Code = "InternalServerError"
	CodeTooManyRequests     Code = "TooManyRequests"

	// Protocol
	CodeRequestFailed Code = "RequestFailed"

	// Closed
	CodeClosed   Code = "Closed"
	CodeCanceled Code = "Canceled"

	CodeUnknown Code = "Unknown"
)

// Kind groups codes by the reaction expected from a caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuth
	KindAvailability
	KindProtocol
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not-found"
	case KindAuth:
		return "auth"
	case KindAvailability:
		return "availability"
	case KindProtocol:
		return "protocol"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var kinds = map[Code]Kind{
	CodeDatabaseNameMissing:   KindValidation,
	CodeDatabaseNameTooLong:   KindValidation,
	CodeItemIDMissing:         KindValidation,
	CodeItemIDTooLong:         KindValidation,
	CodeItemMissing:           KindValidation,
	CodeItemTooLarge:          KindValidation,
	CodeItemInvalid:           KindValidation,
	CodeOperationsMissing:     KindValidation,
	CodeOperationsExceedLimit: KindValidation,
	CodeCommandNotRecognized:  KindValidation,
	CodeUsernameMissing:       KindValidation,
	CodePasswordMissing:       KindValidation,
	CodeParamsInvalid:         KindValidation,

	CodeItemAlreadyExists:  KindConflict,
	CodeItemUpdateConflict: KindConflict,
	CodeOperationsConflict: KindConflict,

	CodeItemDoesNotExist: KindNotFound,
	CodeDatabaseNotOpen:  KindNotFound,
	CodeDatabaseNotFound: KindNotFound,
	CodeUserNotFound:     KindNotFound,

	CodeUserNotSignedIn:            KindAuth,
	CodeUsernameOrPasswordMismatch: KindAuth,
	CodeKeyNotFound:                KindAuth,
	CodeKeyNotValid:                KindAuth,
	CodeKeyMaterialInvalid:         KindAuth,
	CodeSeedRequestDenied:          KindAuth,
	CodeGrantDeclined:              KindAuth,
	CodeDatabaseIsReadOnly:         KindAuth,

	CodeServiceUnavailable:  KindAvailability,
	CodeTimeout:             KindAvailability,
	CodeConnectTimeout:      KindAvailability,
	CodeInternalServerError: KindAvailability,
	CodeTooManyRequests:     KindAvailability,

	CodeRequestFailed: KindProtocol,

	CodeClosed:   KindClosed,
	CodeCanceled: KindClosed,
}

// KindOf returns the kind for c.
func KindOf(c Code) Kind {
	if k, ok := kinds[c]; ok {
		return k
	}
	return KindUnknown
}

// Known reports whether c is one of the codes defined above.
func Known(c Code) bool {
	_, ok := kinds[c]
	return ok
}

// Error is the structured failure returned by cipherdb operations.
type Error struct {
	Code    Code
	Message string

	// Action is the wire action whose response produced this error, if any.
	Action string
	// Status is the response status for relay-originated errors.
	Status int
	// RetryDelay is set for TooManyRequests.
	RetryDelay time.Duration
	// Limit carries size or count limits for validation errors.
	Limit int

	Err error
}

// New returns an *Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error with the given code wrapping cause.
func Wrap(code Code, cause error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

// Kind returns the kind derived from the code.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindUnknown
	}
	return KindOf(e.Code)
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Code)
	if e.Action != "" {
		msg = e.Action + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches by code when target is an *Error with a code.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return t.Message != "" && e.Message == t.Message
}

// WithAction returns a copy of e tagged with action.
func (e *Error) WithAction(action string) *Error {
	cp := *e
	cp.Action = action
	return &cp
}

// Sentinels for errors.Is.
var (
	ErrDatabaseNameMissing   = &Error{Code: CodeDatabaseNameMissing}
	ErrDatabaseNameTooLong   = &Error{Code: CodeDatabaseNameTooLong}
	ErrItemIDMissing         = &Error{Code: CodeItemIDMissing}
	ErrItemIDTooLong         = &Error{Code: CodeItemIDTooLong}
	ErrItemMissing           = &Error{Code: CodeItemMissing}
	ErrItemTooLarge          = &Error{Code: CodeItemTooLarge}
	ErrItemInvalid           = &Error{Code: CodeItemInvalid}
	ErrOperationsMissing     = &Error{Code: CodeOperationsMissing}
	ErrOperationsExceedLimit = &Error{Code: CodeOperationsExceedLimit}
	ErrCommandNotRecognized  = &Error{Code: CodeCommandNotRecognized}
	ErrUsernameMissing       = &Error{Code: CodeUsernameMissing}
	ErrPasswordMissing       = &Error{Code: CodePasswordMissing}
	ErrParamsInvalid         = &Error{Code: CodeParamsInvalid}

	ErrItemAlreadyExists  = &Error{Code: CodeItemAlreadyExists}
	ErrItemUpdateConflict = &Error{Code: CodeItemUpdateConflict}
	ErrOperationsConflict = &Error{Code: CodeOperationsConflict}

	ErrItemDoesNotExist = &Error{Code: CodeItemDoesNotExist}
	ErrDatabaseNotOpen  = &Error{Code: CodeDatabaseNotOpen}
	ErrDatabaseNotFound = &Error{Code: CodeDatabaseNotFound}
	ErrUserNotFound     = &Error{Code: CodeUserNotFound}

	ErrUserNotSignedIn            = &Error{Code: CodeUserNotSignedIn}
	ErrUsernameOrPasswordMismatch = &Error{Code: CodeUsernameOrPasswordMismatch}
	ErrKeyNotFound                = &Error{Code: CodeKeyNotFound}
	ErrKeyNotValid                = &Error{Code: CodeKeyNotValid}
	ErrKeyMaterialInvalid         = &Error{Code: CodeKeyMaterialInvalid}
	ErrSeedRequestDenied          = &Error{Code: CodeSeedRequestDenied}
	ErrGrantDeclined              = &Error{Code: CodeGrantDeclined}
	ErrDatabaseIsReadOnly         = &Error{Code: CodeDatabaseIsReadOnly}

	ErrServiceUnavailable  = &Error{Code: CodeServiceUnavailable}
	ErrTimeout             = &Error{Code: CodeTimeout}
	ErrConnectTimeout      = &Error{Code: CodeConnectTimeout}
	ErrInternalServerError = &Error{Code: CodeInternalServerError}
	ErrTooManyRequests     = &Error{Code: CodeTooManyRequests}

	ErrRequestFailed = &Error{Code: CodeRequestFailed}

	ErrClosed   = &Error{Code: CodeClosed}
	ErrCanceled = &Error{Code: CodeCanceled}
	ErrUnknown  = &Error{Code: CodeUnknown}
)
