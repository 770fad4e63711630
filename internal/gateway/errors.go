// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// The gateway maps every failure into one of four kinds. It never recovers
// from any of them; callers decide what a failure means for their operation.

// CompositionError indicates the request could not be built (bad URL or
// unencodable body). No network traffic occurred.
type CompositionError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *CompositionError) Error() string {
	return fmt.Sprintf("compose request for %q: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CompositionError) Unwrap() error { return e.Err }

// TransportError indicates no usable HTTP response was received.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError indicates an HTTP status outside [200,299]. It always carries
// the exact status code; Message is a best-effort extraction from the body.
type StatusError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d", e.Code)
}

// DecodeError indicates a 2xx body that did not match the expected schema.
type DecodeError struct {
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// =============================================================================
// MATCH HELPERS
// =============================================================================

// StatusCode returns the HTTP status carried by err and true when err is a
// StatusError anywhere in its chain.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	got, ok := StatusCode(err)
	return ok && got == code
}

// =============================================================================
// ERROR BODY EXTRACTION
// =============================================================================

// errorBody is the structured error shape some endpoints return.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Message string `json:"message"`
}

// extractErrorMessage pulls a human-readable message out of an error response
// body. It tries the structured fields first, then the raw body text, then
// falls back to a generic string carrying the code.
func extractErrorMessage(code int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Error != "":
			return eb.Error
		case eb.Details != "":
			return eb.Details
		case eb.Message != "":
			return eb.Message
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}

	return fmt.Sprintf("HTTP error: %d", code)
}
