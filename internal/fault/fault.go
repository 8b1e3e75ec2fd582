// Package fault defines the error taxonomy shared by every pipeline stage.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Domain groups failure kinds by the stage that produced them
type Domain string

const (
	DomainTransport   Domain = "transport"
	DomainRender      Domain = "render"
	DomainExtraction  Domain = "extraction"
	DomainPersistence Domain = "persistence"
)

// Kind is a specific failure condition
type Kind string

const (
	KindTimeout             Kind = "TIMEOUT"
	KindConnectionFailed    Kind = "CONNECTION_FAILED"
	KindNonSuccessStatus    Kind = "NON_SUCCESS_STATUS"
	KindSessionFailure      Kind = "SESSION_FAILURE"
	KindNotFound            Kind = "NOT_FOUND"
	KindMissingIdentifier   Kind = "MISSING_IDENTIFIER"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindUpstream            Kind = "UPSTREAM"
	KindConnectionLost      Kind = "CONNECTION_LOST"
	KindConstraintViolation Kind = "CONSTRAINT_VIOLATION"
	KindCanceled            Kind = "CANCELED"
	KindUnknown             Kind = "UNKNOWN"
)

// Sentinels for errors.Is matching on kind alone
var (
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrConnectionFailed    = &Error{Kind: KindConnectionFailed}
	ErrNonSuccessStatus    = &Error{Kind: KindNonSuccessStatus}
	ErrSessionFailure      = &Error{Kind: KindSessionFailure}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrMissingIdentifier   = &Error{Kind: KindMissingIdentifier}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrUpstream            = &Error{Kind: KindUpstream}
	ErrConnectionLost      = &Error{Kind: KindConnectionLost}
	ErrConstraintViolation = &Error{Kind: KindConstraintViolation}
	ErrCanceled            = &Error{Kind: KindCanceled}
)

// Error wraps a failure with its domain and kind
type Error struct {
	Domain     Domain
	Kind       Kind
	Message    string
	StatusCode int
	Underlying error
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Domain != "" {
		prefix = fmt.Sprintf("%s %s", e.Domain, e.Kind)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Underlying)
	}
	if e.Message == "" {
		return prefix
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches on kind, and on domain when the target names one
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Domain != "" && t.Domain != e.Domain {
		return false
	}
	return t.Kind == e.Kind
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStatus records the upstream HTTP status
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// New creates a new Error
func New(domain Domain, kind Kind, message string, err error) *Error {
	return &Error{
		Domain:     domain,
		Kind:       kind,
		Message:    message,
		Underlying: err,
	}
}

// Transport creates a transport-domain error
func Transport(kind Kind, message string, err error) *Error {
	return New(DomainTransport, kind, message, err)
}

// Render creates a render-domain error
func Render(kind Kind, message string, err error) *Error {
	return New(DomainRender, kind, message, err)
}

// Extraction creates an extraction-domain error
func Extraction(kind Kind, message string, err error) *Error {
	return New(DomainExtraction, kind, message, err)
}

// Persistence creates a persistence-domain error
func Persistence(kind Kind, message string, err error) *Error {
	return New(DomainPersistence, kind, message, err)
}

// NonSuccess builds the transport error for a >=400 response
func NonSuccess(status int, url string) *Error {
	return Transport(KindNonSuccessStatus, fmt.Sprintf("%s returned %d %s", url, status, http.StatusText(status)), nil).
		WithStatus(status)
}

// FromContext maps a context error into the taxonomy. It returns nil for nil.
func FromContext(domain Domain, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return New(domain, KindTimeout, "deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return New(domain, KindCanceled, "canceled", err)
	}
	return err
}

// As extracts the *Error from an error chain
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf classifies any error into a Kind
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}

// DomainOf returns the domain of a classified error
func DomainOf(err error) Domain {
	if fe, ok := As(err); ok {
		return fe.Domain
	}
	return ""
}

// StatusCode returns the upstream HTTP status recorded on err, or 0
func StatusCode(err error) int {
	if fe, ok := As(err); ok {
		return fe.StatusCode
	}
	return 0
}

// IsTransient reports whether retrying the same operation may succeed
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindConnectionFailed, KindConnectionLost:
		return true
	}
	return false
}
