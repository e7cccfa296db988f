package domain

import "errors"

// ErrNotFound indicates no queued transfer exists with the given ID
var ErrNotFound = errors.New("transfer not found")

// ErrInvalidTransition indicates a status change the state machine does not allow
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrInvalidRequest indicates a transfer request is missing a url or destination
var ErrInvalidRequest = errors.New("invalid transfer request")

// ErrHashMismatch indicates the downloaded file did not match the expected hash
var ErrHashMismatch = errors.New("hash mismatch")

// ErrUnsupportedHash indicates an unknown hash algorithm name
var ErrUnsupportedHash = errors.New("unsupported hash algorithm")

// ErrCancelled indicates a transfer was stopped by its caller
var ErrCancelled = errors.New("transfer cancelled")
