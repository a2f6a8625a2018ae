// Package abi holds the interface-description model used by the repository and decoder:
// documents, items, canonical signatures, contract fingerprints and decoded results.
package abi

import (
	"strconv"
	"strings"
)

// Kind is the kind of a decodable interface item.
type Kind string

const (
	KindFunction Kind = "function"
	KindEvent    Kind = "event"
)

// MaxSafeIntegerBits is the widest integer type rendered as a native int64. Wider integer
// types are rendered as *big.Int. The boundary is the safe-integer width of a float64 so
// decoded records survive consumers that parse JSON numbers as doubles.
const MaxSafeIntegerBits = 53

// Input describes a single parameter of a function or event.
type Input struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	InternalType string  `json:"internalType,omitempty"`
	Indexed      bool    `json:"indexed,omitempty"`
	Components   []Input `json:"components,omitempty"`
}

// Item is one entry of an interface description as it appears in a document.
type Item struct {
	Type      string  `json:"type"`
	Name      string  `json:"name,omitempty"`
	Inputs    []Input `json:"inputs"`
	Anonymous bool    `json:"anonymous,omitempty"`
}

// IsDecodable reports whether the item is a named function or event.
func (i *Item) IsDecodable() bool {
	return (i.Type == string(KindFunction) || i.Type == string(KindEvent)) && i.Name != ""
}

// AbiItem is a function or event loaded into a repository together with the identity of the
// contract that declared it. AbiItems are immutable once loaded.
type AbiItem struct {
	Kind                Kind
	Name                string
	Inputs              []Input
	Anonymous           bool
	ContractName        string
	ContractFingerprint string
	ContractAddresses   []string
	FileName            string
}

// ContractIdentity identifies a loaded interface document.
type ContractIdentity struct {
	ContractName string   `json:"contractName"`
	FileName     string   `json:"fileName"`
	Fingerprint  string   `json:"fingerprint"`
	Addresses    []string `json:"addresses,omitempty"`
}

// RawLog is the undecoded payload of a log entry. Topics[0] is the event topic.
type RawLog struct {
	Data   string
	Topics []string
}

// DecodedParameter is one named, typed and decoded parameter.
type DecodedParameter struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// DecodedCall is a decoded function call.
type DecodedCall struct {
	Name      string                 `json:"name"`
	Signature string                 `json:"signature"`
	Params    []DecodedParameter     `json:"params"`
	Args      map[string]interface{} `json:"args"`
}

// DecodedEvent is a decoded log event.
type DecodedEvent struct {
	Name      string                 `json:"name"`
	Signature string                 `json:"signature"`
	Params    []DecodedParameter     `json:"params"`
	Args      map[string]interface{} `json:"args"`
}

// IsArrayType reports whether the type is a dynamic or fixed size array, e.g. uint256[] or address[3].
func IsArrayType(typ string) bool {
	return strings.HasSuffix(typ, "]") && strings.LastIndex(typ, "[") > 0
}

// ElementType strips the outermost array dimension: uint8[2][] -> uint8[2].
func ElementType(typ string) string {
	if !IsArrayType(typ) {
		return typ
	}
	return typ[:strings.LastIndex(typ, "[")]
}

// IntBits returns the bit width of an int<N>/uint<N> type. A bare int or uint is 256 bits.
// -1 is returned when the type does not carry the prefix or the width does not parse.
func IntBits(typ string, prefix string) int {
	if !strings.HasPrefix(typ, prefix) {
		return -1
	}
	width := typ[len(prefix):]
	if width == "" {
		return 256
	}
	bits, err := strconv.Atoi(width)
	if err != nil || bits <= 0 || bits > 256 {
		return -1
	}
	return bits
}

// IsIntegerType reports whether the type is int<N> or uint<N> and returns its width and signedness.
func IsIntegerType(typ string) (bits int, signed bool, ok bool) {
	if bits = IntBits(typ, "uint"); bits > 0 {
		return bits, false, true
	}
	if bits = IntBits(typ, "int"); bits > 0 {
		return bits, true, true
	}
	return 0, false, false
}

// NewDecodedCall builds a DecodedCall, filling the name->value view in positional order.
func NewDecodedCall(name string, signature string, params []DecodedParameter) *DecodedCall {
	return &DecodedCall{
		Name:      name,
		Signature: signature,
		Params:    params,
		Args:      argsFromParams(params),
	}
}

// NewDecodedEvent builds a DecodedEvent, filling the name->value view in positional order.
func NewDecodedEvent(name string, signature string, params []DecodedParameter) *DecodedEvent {
	return &DecodedEvent{
		Name:      name,
		Signature: signature,
		Params:    params,
		Args:      argsFromParams(params),
	}
}

// duplicate names are not deduplicated, the last parameter wins
func argsFromParams(params []DecodedParameter) map[string]interface{} {
	args := make(map[string]interface{}, len(params))
	for _, p := range params {
		args[p.Name] = p.Value
	}
	return args
}
