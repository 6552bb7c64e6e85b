package ims

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingArgument is returned when a required argument is missing.
	// It is raised before any network exchange.
	ErrMissingArgument = errors.New("ims: required argument missing")

	// ErrNotFound is returned when a requested event, incident or street
	// table entry does not exist in the loaded data.
	ErrNotFound = errors.New("ims: not found")

	// ErrUnknownEndpoint is returned when the bag has no URL for an endpoint name.
	ErrUnknownEndpoint = errors.New("ims: endpoint not found in bag")

	// ErrUnresolvedParameter is returned when a URL template still contains
	// placeholders after substitution, or a parameter has no value.
	ErrUnresolvedParameter = errors.New("ims: unresolved URL parameter")

	// ErrNotJSON is returned when a request or a successful response does
	// not carry JSON content.
	ErrNotJSON = errors.New("ims: content type is not JSON")

	// ErrUnauthorized is matched by a ResponseError with status 401.
	ErrUnauthorized = errors.New("ims: authorization failed")

	// ErrInvalidToken is returned when a login response carries no token,
	// a malformed token, or a token without an expiration claim.
	ErrInvalidToken = errors.New("ims: invalid credentials token")

	// ErrInvalidState is returned for an incident state outside the
	// five known values.
	ErrInvalidState = errors.New("ims: invalid incident state")

	// ErrNotModifiedWithoutCache is returned when the server answers
	// "not modified" although nothing was cached.
	ErrNotModifiedWithoutCache = errors.New("ims: not modified response without cached value")

	// ErrNotImplemented is returned by the incident mutation operations.
	// A call that fails with it had no effect on the server.
	ErrNotImplemented = errors.New("ims: operation not implemented")
)

// ResponseError reports a non-success response for a resource.
type ResponseError struct {
	Resource   string
	URL        string
	StatusCode int
	Status     string
}

func (e *ResponseError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("ims: failed to retrieve %s from %s: %s", e.Resource, e.URL, status)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *ResponseError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// InvalidJSONError reports a document that does not match its schema.
type InvalidJSONError struct {
	// Kind names the document, e.g. "incident" or "bag".
	Kind string
	// Field is the offending field, empty if the document as a whole is malformed.
	Field string
	Err   error
}

func (e *InvalidJSONError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("ims: invalid %s JSON: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("ims: invalid %s JSON: %s: %v", e.Kind, e.Field, e.Err)
}

func (e *InvalidJSONError) Unwrap() error {
	return e.Err
}

// errMissingField is the cause recorded for absent required fields.
var errMissingField = errors.New("required field missing")

func missingField(kind, field string) error {
	return &InvalidJSONError{Kind: kind, Field: field, Err: errMissingField}
}

func invalidField(kind, field string, err error) error {
	return &InvalidJSONError{Kind: kind, Field: field, Err: err}
}
