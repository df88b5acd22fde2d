package cmegroup

import (
	"fmt"
	"net/http"
)

// TransportError reports a request that did not produce a usable response:
// a network failure, a timeout or a non-2xx status. StatusCode is zero when
// no response was received.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("settlements request failed with status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("settlements request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a response body that is not the expected JSON document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to decode settlements response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
