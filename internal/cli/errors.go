// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Exit code mapping for CLI commands.
//
// Commands always return errors; display happens once in Execute. The exit
// code is derived from the error's type so scripts can distinguish failure
// categories.
package cli

import (
	"errors"

	"github.com/nanochat/nanochat-go/internal/catalog"
	"github.com/nanochat/nanochat-go/internal/config"
	"github.com/nanochat/nanochat-go/internal/gateway"
	"github.com/nanochat/nanochat-go/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication or authorization failure
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// ExitCode determines the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, session.ErrGenerationTimedOut) {
		return ExitTimeoutError
	}
	if errors.Is(err, session.ErrEmptySend) || errors.Is(err, session.ErrNothingToRegenerate) {
		return ExitUsageError
	}
	if errors.Is(err, catalog.ErrUnknownModel) {
		return ExitUsageError
	}

	if code, ok := gateway.StatusCode(err); ok {
		switch {
		case code == 401 || code == 403:
			return ExitAuthError
		case code == 404:
			return ExitNotFoundError
		default:
			return ExitGeneralError
		}
	}

	var transportErr *gateway.TransportError
	if errors.As(err, &transportErr) {
		return ExitNetworkError
	}

	var compositionErr *gateway.CompositionError
	if errors.As(err, &compositionErr) {
		return ExitUsageError
	}

	var validationErrs config.ValidateErrors
	if errors.As(err, &validationErrs) {
		return ExitConfigError
	}

	return ExitGeneralError
}
