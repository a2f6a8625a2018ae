package abi

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInterfaceItem is returned when an interface item cannot produce a signature
	ErrInvalidInterfaceItem = errors.New("invalid interface item")

	// ErrInvalidSignatureFormat is returned when a signature string has no name before its parameter list
	ErrInvalidSignatureFormat = errors.New("invalid signature format")

	// ErrUnsupportedDocument is returned when a document is neither an item array nor a build artifact
	ErrUnsupportedDocument = errors.New("unsupported interface document")

	// ErrDirectoryRead is returned when the root of an interface directory cannot be listed
	ErrDirectoryRead = errors.New("failed to read interface directory")

	// ErrInvalidBooleanLiteral is returned for bool values other than true, false, "1" and "0"
	ErrInvalidBooleanLiteral = errors.New("invalid boolean literal")

	// ErrInvalidIntegerLiteral is returned for integer values that are not base-10 literals
	ErrInvalidIntegerLiteral = errors.New("invalid integer literal")

	// ErrInvalidAddressLiteral is returned for address values that are not 20 byte hex strings
	ErrInvalidAddressLiteral = errors.New("invalid address literal")

	// ErrMissingTopic is returned when a log carries fewer topics than its event declares indexed parameters
	ErrMissingTopic = errors.New("missing topic for indexed parameter")
)

// SignatureCollisionError is returned when two different canonical signatures hash to the same
// selector or topic. It is never recoverable: decoding against a colliding index would attribute
// payloads to the wrong signature.
type SignatureCollisionError struct {
	Kind     Kind
	Hash     string
	Existing string
	Incoming string
	FileName string
}

func (e *SignatureCollisionError) Error() string {
	return fmt.Sprintf("abi signature collision for %s hash %s: saw %q and %q (loading %s)",
		e.Kind, e.Hash, e.Existing, e.Incoming, e.FileName)
}

// IsSignatureCollision reports whether err is or wraps a SignatureCollisionError.
func IsSignatureCollision(err error) bool {
	var collision *SignatureCollisionError
	return errors.As(err, &collision)
}
