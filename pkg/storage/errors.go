package storage

import "errors"

var (
	// ErrNotFound is returned when a requested item is not found in storage
	ErrNotFound = errors.New("item not found")

	// ErrStoreClosed is returned when attempting to use a closed storage instance
	ErrStoreClosed = errors.New("storage is closed")

	// ErrInvalidSignatureKind is returned for signature kinds other than function and event
	ErrInvalidSignatureKind = errors.New("invalid signature kind")
)
