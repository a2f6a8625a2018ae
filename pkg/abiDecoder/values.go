package abiDecoder

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DecodeParameterValue applies the value policy for a single scalar of the given ABI type.
//
//   - bool: native booleans pass through, "1" and "0" map to true and false.
//   - int<N>/uint<N>: N <= abi.MaxSafeIntegerBits renders as int64, wider types as *big.Int.
//     Values may arrive as base-10 strings, native Go integers or *big.Int.
//   - address: rendered as an EIP-55 checksummed hex string.
//   - bytes/bytes<N>: rendered as 0x prefixed hex.
//   - anything else passes through unchanged.
func DecodeParameterValue(value interface{}, typ string) (interface{}, error) {
	if typ == "bool" {
		return decodeBool(value)
	}
	if bits, signed, ok := abi.IsIntegerType(typ); ok {
		return decodeInteger(value, bits, signed)
	}
	if typ == "address" {
		return decodeAddress(value)
	}
	if isBytesType(typ) {
		return decodeBytes(value), nil
	}
	return value, nil
}

// DecodeValue decodes a value of any type, applying DecodeParameterValue to each element of an
// array using the element type.
func DecodeValue(value interface{}, typ string) (interface{}, error) {
	if !abi.IsArrayType(typ) {
		return DecodeParameterValue(value, typ)
	}
	elemType := abi.ElementType(typ)

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected array value for type %s, got %T", typ, value)
	}
	values := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := DecodeValue(rv.Index(i).Interface(), elemType)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

func decodeBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v", abi.ErrInvalidBooleanLiteral, value)
}

func decodeInteger(value interface{}, bits int, signed bool) (interface{}, error) {
	var n *big.Int
	switch v := value.(type) {
	case string:
		if bits <= abi.MaxSafeIntegerBits {
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", abi.ErrInvalidIntegerLiteral, v)
			}
			return i, nil
		}
		parsed, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q", abi.ErrInvalidIntegerLiteral, v)
		}
		return parsed, nil
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("%w: nil", abi.ErrInvalidIntegerLiteral)
		}
		n = new(big.Int).Set(v)
	case int:
		n = big.NewInt(int64(v))
	case int8:
		n = big.NewInt(int64(v))
	case int16:
		n = big.NewInt(int64(v))
	case int32:
		n = big.NewInt(int64(v))
	case int64:
		n = big.NewInt(v)
	case uint8:
		n = new(big.Int).SetUint64(uint64(v))
	case uint16:
		n = new(big.Int).SetUint64(uint64(v))
	case uint32:
		n = new(big.Int).SetUint64(uint64(v))
	case uint64:
		n = new(big.Int).SetUint64(v)
	case uint:
		n = new(big.Int).SetUint64(uint64(v))
	default:
		return nil, fmt.Errorf("%w: unexpected %T", abi.ErrInvalidIntegerLiteral, value)
	}

	// native signed integers of small widths are already normalized upstream
	if bits <= abi.MaxSafeIntegerBits || (signed && isNativeSigned(value) && n.IsInt64()) {
		if !n.IsInt64() {
			return nil, fmt.Errorf("%w: %s overflows int%d", abi.ErrInvalidIntegerLiteral, n.String(), bits)
		}
		return n.Int64(), nil
	}
	return n, nil
}

func isNativeSigned(value interface{}) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64:
		return true
	}
	return false
}

func decodeAddress(value interface{}) (string, error) {
	switch v := value.(type) {
	case common.Address:
		return v.Hex(), nil
	case *common.Address:
		if v != nil {
			return v.Hex(), nil
		}
	case string:
		if common.IsHexAddress(v) {
			return common.HexToAddress(v).Hex(), nil
		}
	}
	return "", fmt.Errorf("%w: %v", abi.ErrInvalidAddressLiteral, value)
}

func isBytesType(typ string) bool {
	if typ == "bytes" {
		return true
	}
	if len(typ) <= len("bytes") || typ[:len("bytes")] != "bytes" {
		return false
	}
	n, err := strconv.Atoi(typ[len("bytes"):])
	return err == nil && n > 0 && n <= 32
}

func decodeBytes(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		return hexutil.Encode(v)
	case string:
		return v
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return hexutil.Encode(b)
	}
	return value
}
