package abi

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// FunctionSelectorLength is the byte length of a function selector
	FunctionSelectorLength = 4
	// EventTopicLength is the byte length of an event topic
	EventTopicLength = 32
)

// ComputeSignature builds the canonical signature name(type1,type2,...) of an item.
// Parameter types are used as declared; tuple types are expanded to their component list.
func ComputeSignature(name string, inputs []Input) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: cannot compute signature of an item without name", ErrInvalidInterfaceItem)
	}
	types := make([]string, len(inputs))
	for i, input := range inputs {
		types[i] = CanonicalType(input)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(types, ",")), nil
}

// CanonicalType returns the type token used in a canonical signature.
func CanonicalType(input Input) string {
	if !strings.HasPrefix(input.Type, "tuple") {
		return input.Type
	}
	components := make([]string, len(input.Components))
	for i, c := range input.Components {
		components[i] = CanonicalType(c)
	}
	// keeps any array suffix, tuple[] -> (a,b)[]
	return "(" + strings.Join(components, ",") + ")" + strings.TrimPrefix(input.Type, "tuple")
}

// SignatureHash returns the keccak256 based hash of a canonical signature: the first 4 bytes
// for functions and the full 32 bytes for events.
func SignatureHash(signature string, kind Kind) []byte {
	hash := crypto.Keccak256([]byte(signature))
	if kind == KindEvent {
		return hash
	}
	return hash[:FunctionSelectorLength]
}

// ComputeSignatureHash returns the hex rendering (no 0x prefix) of SignatureHash: 8 characters
// for functions and 64 characters for events.
func ComputeSignatureHash(signature string, kind Kind) string {
	return hex.EncodeToString(SignatureHash(signature, kind))
}

// ParseSignature recovers the item name of a canonical signature. Parameter types are not
// reconstructed.
func ParseSignature(signature string, kind Kind) (*Item, error) {
	openParen := strings.Index(signature, "(")
	if openParen < 1 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSignatureFormat, signature)
	}
	return &Item{
		Type:   string(kind),
		Name:   signature[:openParen],
		Inputs: []Input{},
	}, nil
}

// NormalizeHash lower-cases a hex hash and strips its 0x prefix so it can be used as an index key.
func NormalizeHash(hash string) string {
	hash = strings.ToLower(strings.TrimSpace(hash))
	return strings.TrimPrefix(hash, "0x")
}

// KindForHash infers the item kind from the length of a normalized hash.
func KindForHash(hash string) (Kind, bool) {
	switch len(NormalizeHash(hash)) {
	case FunctionSelectorLength * 2:
		return KindFunction, true
	case EventTopicLength * 2:
		return KindEvent, true
	default:
		return "", false
	}
}
