package main

import (
	"context"
	"errors"

	"github.com/v0xg/thesisdl/internal/ai"
	"github.com/v0xg/thesisdl/internal/browser"
	"github.com/v0xg/thesisdl/internal/config"
)

// Exit codes for the thesisdl CLI.
const (
	ExitSuccess     = 0   // every document downloaded
	ExitFailed      = 1   // at least one document failed, or unexpected error
	ExitUsage       = 2   // invalid flags, config or arguments
	ExitBrowser     = 4   // browser could not be started
	ExitInterrupted = 130 // SIGINT/SIGTERM
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}

	if errors.Is(err, browser.ErrMissingDriver) ||
		errors.Is(err, browser.ErrUnknownEngine) {
		return ExitBrowser
	}

	if errors.Is(err, errUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrInvalid) ||
		errors.Is(err, ai.ErrNoAPIKey) {
		return ExitUsage
	}

	return ExitFailed
}
