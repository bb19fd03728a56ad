// Package apperr holds the sentinel errors shared across postlock packages.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrBusy           = errors.New("another command is running")
	ErrInvalidPayload = errors.New("invalid encrypted payload")
	ErrAllowListed    = errors.New("path is allow-listed")
	ErrInvalidArchive = errors.New("not a valid zip archive")
)
