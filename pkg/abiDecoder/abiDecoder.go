// Package abiDecoder turns ABI encoded call data and log payloads into named, typed parameters.
// The byte layout is unpacked by go-ethereum's abi codec; this package layers the value policy
// and the indexed-topic handling of events on top of it.
package abiDecoder

import (
	"fmt"
	"strings"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// NewArguments converts interface inputs into go-ethereum arguments.
func NewArguments(inputs []abi.Input) (gethabi.Arguments, error) {
	args := make(gethabi.Arguments, 0, len(inputs))
	for _, input := range inputs {
		typ, err := gethabi.NewType(input.Type, input.InternalType, toArgumentMarshaling(input.Components))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid type %s for parameter %s", input.Type, input.Name)
		}
		args = append(args, gethabi.Argument{
			Name:    input.Name,
			Type:    typ,
			Indexed: input.Indexed,
		})
	}
	return args, nil
}

func toArgumentMarshaling(components []abi.Input) []gethabi.ArgumentMarshaling {
	if len(components) == 0 {
		return nil
	}
	out := make([]gethabi.ArgumentMarshaling, len(components))
	for i, c := range components {
		out[i] = gethabi.ArgumentMarshaling{
			Name:         c.Name,
			Type:         c.Type,
			InternalType: c.InternalType,
			Indexed:      c.Indexed,
			Components:   toArgumentMarshaling(c.Components),
		}
	}
	return out
}

// DecodeFunctionCall decodes the parameter tuple of a call. data must not include the selector.
func DecodeFunctionCall(data []byte, item *abi.AbiItem, signature string) (*abi.DecodedCall, error) {
	args, err := NewArguments(item.Inputs)
	if err != nil {
		return nil, err
	}
	rawValues, err := args.Unpack(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack call data for %s", signature)
	}
	if len(rawValues) != len(item.Inputs) {
		return nil, fmt.Errorf("unpacked %d values for %d parameters of %s", len(rawValues), len(item.Inputs), signature)
	}

	params := make([]abi.DecodedParameter, len(item.Inputs))
	for i, input := range item.Inputs {
		value, err := DecodeValue(rawValues[i], input.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode parameter %s of %s", input.Name, signature)
		}
		params[i] = abi.DecodedParameter{
			Name:  input.Name,
			Type:  input.Type,
			Value: value,
		}
	}
	return abi.NewDecodedCall(item.Name, signature, params), nil
}

// DecodeLogEvent decodes a log. Indexed parameters are read from topics[1:] in declaration order;
// non-indexed parameters are unpacked from data in declaration order.
func DecodeLogEvent(data []byte, topics []string, item *abi.AbiItem, signature string) (*abi.DecodedEvent, error) {
	nonIndexed := make([]abi.Input, 0, len(item.Inputs))
	for _, input := range item.Inputs {
		if !input.Indexed {
			nonIndexed = append(nonIndexed, input)
		}
	}
	args, err := NewArguments(nonIndexed)
	if err != nil {
		return nil, err
	}
	rawValues, err := args.Unpack(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack log data for %s", signature)
	}
	if len(rawValues) != len(nonIndexed) {
		return nil, fmt.Errorf("unpacked %d values for %d data parameters of %s", len(rawValues), len(nonIndexed), signature)
	}

	topicIndex := 1
	dataIndex := 0
	params := make([]abi.DecodedParameter, len(item.Inputs))
	for i, input := range item.Inputs {
		var value interface{}
		if input.Indexed {
			if topicIndex >= len(topics) {
				return nil, fmt.Errorf("%w %s of %s", abi.ErrMissingTopic, input.Name, signature)
			}
			topic := topics[topicIndex]
			topicIndex++
			value, err = decodeTopicValue(input, topic)
		} else {
			value, err = DecodeValue(rawValues[dataIndex], input.Type)
			dataIndex++
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode parameter %s of %s", input.Name, signature)
		}
		params[i] = abi.DecodedParameter{
			Name:  input.Name,
			Type:  input.Type,
			Value: value,
		}
	}
	return abi.NewDecodedEvent(item.Name, signature, params), nil
}

// decodeTopicValue converts an indexed parameter's topic into its value. Array, tuple, string and
// bytes parameters are stored as a hash of their content; arrays are unrecoverable and render as an
// empty array while the others keep the raw topic.
func decodeTopicValue(input abi.Input, topic string) (interface{}, error) {
	if abi.IsArrayType(input.Type) {
		return []interface{}{}, nil
	}
	if input.Type == "address" {
		normalized := abi.NormalizeHash(topic)
		if len(normalized) < 40 {
			return nil, fmt.Errorf("%w: topic %s", abi.ErrInvalidAddressLiteral, topic)
		}
		return DecodeParameterValue("0x"+normalized[len(normalized)-40:], input.Type)
	}
	if !strings.HasPrefix(topic, "0x") {
		topic = "0x" + topic
	}

	typ, err := gethabi.NewType(input.Type, input.InternalType, toArgumentMarshaling(input.Components))
	if err != nil {
		return nil, err
	}
	word := common.HexToHash(topic).Bytes()
	switch typ.T {
	case gethabi.IntTy, gethabi.UintTy:
		raw, err := gethabi.ReadInteger(typ, word)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", abi.ErrInvalidIntegerLiteral, err)
		}
		return DecodeParameterValue(raw, input.Type)
	case gethabi.BoolTy:
		raw, err := readBool(word)
		if err != nil {
			return nil, err
		}
		return DecodeParameterValue(raw, input.Type)
	default:
		// fixed bytes arrive unchanged; dynamic values are only present as their hash
		return topic, nil
	}
}

// readBool converts a 32-byte word to a boolean value.
// Valid encodings have all bytes except the last one set to zero,
// and the last byte set to either 0 (false) or 1 (true).
func readBool(word []byte) (bool, error) {
	for _, b := range word[:31] {
		if b != 0 {
			return false, abi.ErrInvalidBooleanLiteral
		}
	}
	switch word[31] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, abi.ErrInvalidBooleanLiteral
	}
}
