package remote

import (
	"errors"
	"fmt"
)

// Error taxonomy exposed to workers.

// errNoIDMatch means a successful response body did not contain the
// identifier pattern the caller expected to extract.
var errNoIDMatch = errors.New("remote: no identifier found in response body")

func errNon2xx(status int) error {
	return fmt.Errorf("remote: unexpected status %d", status)
}

// NationStatesError wraps the remote's <ERROR> message.
type NationStatesError struct {
	Message string
}

func (e *NationStatesError) Error() string { return fmt.Sprintf("nationstates: %s", e.Message) }

// HTTPError wraps a non-2xx response or a transport-level fault.
type HTTPError struct {
	Cause error
}

func (e *HTTPError) Error() string { return fmt.Sprintf("http: %s", e.Cause) }
func (e *HTTPError) Unwrap() error { return e.Cause }

// DecodeError wraps an XML parse failure or header decode failure.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %s", e.Cause) }
func (e *DecodeError) Unwrap() error { return e.Cause }

// ParseError means the identifier regex did not match a successful
// response body.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse: %s", e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }
