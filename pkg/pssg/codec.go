package pssg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Codec errors.
var (
	ErrInvalidHex          = errors.New("invalid hex token")
	ErrInvalidDecimal      = errors.New("invalid decimal token")
	ErrUnsupportedDataType = errors.New("unsupported data type")
	ErrTruncatedStream     = errors.New("truncated data stream")
)

// DataType is the element type of a raw numeric stream.
type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeUChar            // 1-byte unsigned
	DataTypeUShort           // 2-byte unsigned, big-endian
	DataTypeHalf             // IEEE-754 binary16, big-endian
	DataTypeFloat            // IEEE-754 binary32, big-endian
)

// ParseDataType maps a document tag to a DataType.
func ParseDataType(tag string) DataType {
	switch tag {
	case "uchar":
		return DataTypeUChar
	case "ushort":
		return DataTypeUShort
	case "half":
		return DataTypeHalf
	case "float":
		return DataTypeFloat
	default:
		return DataTypeUnknown
	}
}

// String returns the document tag for the type.
func (d DataType) String() string {
	switch d {
	case DataTypeUChar:
		return "uchar"
	case DataTypeUShort:
		return "ushort"
	case DataTypeHalf:
		return "half"
	case DataTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Stride returns the number of bytes one element occupies, or 0 for unknown types.
func (d DataType) Stride() int {
	switch d {
	case DataTypeUChar:
		return 1
	case DataTypeUShort, DataTypeHalf:
		return 2
	case DataTypeFloat:
		return 4
	default:
		return 0
	}
}

// IsInteger reports whether the type holds unsigned integers.
func (d DataType) IsInteger() bool {
	return d == DataTypeUChar || d == DataTypeUShort
}

// IsDecimal reports whether text is decimal-encoded: every character is an
// ASCII digit or whitespace. Anything else is treated as hex.
func IsDecimal(text string) bool {
	for _, c := range text {
		if c >= '0' && c <= '9' {
			continue
		}
		if unicode.IsSpace(c) {
			continue
		}
		return false
	}
	return true
}

// DecodeHex decodes whitespace-delimited hex tokens into bytes. A token is
// either a single byte pair ("3F") or a packed run of pairs ("3F800000").
func DecodeHex(text string) ([]byte, error) {
	fields := strings.Fields(text)
	out := make([]byte, 0, len(fields))
	for _, tok := range fields {
		if len(tok)%2 != 0 {
			return nil, fmt.Errorf("%w: %q has odd length", ErrInvalidHex, tok)
		}
		for i := 0; i < len(tok); i += 2 {
			b, err := strconv.ParseUint(tok[i:i+2], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidHex, tok[i:i+2])
			}
			out = append(out, byte(b))
		}
	}
	return out, nil
}

// DecodeFloats decodes text into float32 values. Hex payloads are split into
// big-endian elements of the data type's stride; integer and half elements
// are widened to float32. Decimal payloads are parsed token by token.
func DecodeFloats(text string, dt DataType) ([]float32, error) {
	stride := dt.Stride()
	if stride == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, dt)
	}

	if IsDecimal(text) {
		fields := strings.Fields(text)
		out := make([]float32, len(fields))
		for i, tok := range fields {
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %q as %s", ErrInvalidDecimal, tok, dt)
			}
			out[i] = float32(v)
		}
		return out, nil
	}

	raw, err := splitElements(text, stride)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(raw)/stride)
	for i := range out {
		chunk := raw[i*stride : (i+1)*stride]
		switch dt {
		case DataTypeUChar:
			out[i] = float32(chunk[0])
		case DataTypeUShort:
			out[i] = float32(binary.BigEndian.Uint16(chunk))
		case DataTypeHalf:
			out[i] = HalfToFloat32(binary.BigEndian.Uint16(chunk))
		case DataTypeFloat:
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(chunk))
		}
	}
	return out, nil
}

// DecodeUints decodes text into unsigned integers. Only uchar and ushort
// streams are accepted.
func DecodeUints(text string, dt DataType) ([]uint32, error) {
	if !dt.IsInteger() {
		return nil, fmt.Errorf("%w: %s is not an integer type", ErrUnsupportedDataType, dt)
	}
	if IsDecimal(text) {
		return parseDecimalUints(text, 8*dt.Stride(), dt.String())
	}

	stride := dt.Stride()
	raw, err := splitElements(text, stride)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(raw)/stride)
	for i := range out {
		if dt == DataTypeUChar {
			out[i] = uint32(raw[i])
		} else {
			out[i] = uint32(binary.BigEndian.Uint16(raw[i*2:]))
		}
	}
	return out, nil
}

// DecodeDecimalUints parses whitespace-separated decimal tokens as 32-bit
// unsigned integers without consulting a data type.
func DecodeDecimalUints(text string) ([]uint32, error) {
	if !IsDecimal(text) {
		return nil, fmt.Errorf("%w: payload is not decimal", ErrInvalidDecimal)
	}
	return parseDecimalUints(text, 32, "uint32")
}

func parseDecimalUints(text string, bits int, target string) ([]uint32, error) {
	fields := strings.Fields(text)
	out := make([]uint32, len(fields))
	for i, tok := range fields {
		v, err := strconv.ParseUint(tok, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("%w: %q as %s", ErrInvalidDecimal, tok, target)
		}
		out[i] = uint32(v)
	}
	return out, nil
}

func splitElements(text string, stride int) ([]byte, error) {
	raw, err := DecodeHex(text)
	if err != nil {
		return nil, err
	}
	if len(raw)%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncatedStream, len(raw), stride)
	}
	return raw, nil
}

// HalfToFloat32 widens an IEEE-754 binary16 value to binary32.
// Zero keeps its sign; denormals are not handled.
func HalfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exponent := uint32(h>>10) & 0x1f
	mantissa := uint32(h) & 0x3ff

	if exponent == 0 && mantissa == 0 {
		return math.Float32frombits(sign << 31)
	}

	exp := exponent - 15 + 127
	return math.Float32frombits(sign<<31 | exp<<23 | mantissa<<13)
}
