// Package common defines shared constants, sentinel errors and small
// primitives used across the sync engine. Callers should use errors.Is to
// match the error values.
package common

import "errors"

var (
	// Local store errors.
	ErrorNotFound       = errors.New("not found")
	ErrUnknownTable     = errors.New("unknown table")
	ErrStoreClosed      = errors.New("local store unavailable")
	ErrNotSoftDeletable = errors.New("table has no deleted_at column")

	// Sync errors.
	ErrAlreadySyncing = errors.New("already syncing")

	// Auth errors (missing or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrMissingToken = errors.New("missing auth token")
)
