// Package common defines shared constants and sentinel errors used across
// the fueltrack sync core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorNoMaster = errors.New("no master copy")

	// Edit/sync admission errors (generic flow control; the per-call
	// outcome enums carry the specific branch).
	ErrorBusyEditing = errors.New("edit in progress")
	ErrorBusySyncing = errors.New("sync in progress")
	ErrorInConflict  = errors.New("conflict pending resolution")

	// Remote/auth errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrInvalidToken   = errors.New("invalid auth token")
	ErrTokenExpired   = errors.New("auth token expired")

	// Internal failures (system-faulted: local store broken).
	ErrorInternal = errors.New("internal error")
)
