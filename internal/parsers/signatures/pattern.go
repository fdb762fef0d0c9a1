package signatures

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/deploymenttheory/go-carver/internal/types"
)

// ErrInvalidPattern is returned when a pattern definition cannot be decoded
var ErrInvalidPattern = errors.New("invalid byte pattern")

// BytePattern is one signature compared against a sector.
//
// Position is the absolute offset for header patterns and the trailing
// padding for footer patterns.
type BytePattern struct {
	Bytes    [types.MaxPatternBytes]byte
	Length   int
	Position int
}

// NewPattern builds a pattern from a hex or literal definition
func NewPattern(isHex bool, context string, length, position int) (BytePattern, error) {
	if length < 1 || length > types.MaxPatternBytes {
		return BytePattern{}, fmt.Errorf("%w: size %d outside 1..%d", ErrInvalidPattern, length, types.MaxPatternBytes)
	}
	if position < 0 {
		return BytePattern{}, fmt.Errorf("%w: negative position %d", ErrInvalidPattern, position)
	}

	pattern := BytePattern{Length: length, Position: position}
	if isHex {
		decoded, err := DecodeHex(context)
		if err != nil {
			return BytePattern{}, err
		}
		pattern.Bytes = decoded
	} else {
		pattern.Bytes = DecodeLiteral(context)
	}
	return pattern, nil
}

// Signature returns the bytes that take part in a comparison
func (p *BytePattern) Signature() []byte {
	return p.Bytes[:p.Length]
}

// String renders the signature as hex
func (p *BytePattern) String() string {
	return hex.EncodeToString(p.Signature())
}

// DecodeHex decodes two hex digits per byte from at most MaxHexSourceChars characters.
// A trailing odd digit is decoded as a byte on its own.
func DecodeHex(context string) ([types.MaxPatternBytes]byte, error) {
	var out [types.MaxPatternBytes]byte

	if len(context) > types.MaxHexSourceChars {
		context = context[:types.MaxHexSourceChars]
	}

	even := context[:len(context)&^1]
	decoded, err := hex.DecodeString(even)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	n := copy(out[:], decoded)

	if len(context)%2 == 1 {
		value, err := strconv.ParseUint(context[len(context)-1:], 16, 8)
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		out[n] = byte(value)
	}
	return out, nil
}

// DecodeLiteral copies raw text into the pattern, clamped and zero-padded to capacity
func DecodeLiteral(context string) [types.MaxPatternBytes]byte {
	var out [types.MaxPatternBytes]byte
	copy(out[:], context)
	return out
}
