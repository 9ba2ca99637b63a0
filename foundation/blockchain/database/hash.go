package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// HashLength is the number of bytes in a block hash.
const HashLength = 32

// ErrInvalidHash is returned when a hash string can't be parsed.
var ErrInvalidHash = errors.New("invalid block hash")

// Hash represents the 32 byte SHA-256 digest that identifies a block.
type Hash [HashLength]byte

// ZeroHash represents the hash used as the parent of the genesis block.
var ZeroHash Hash

// ParseHash converts a hex string into a Hash. The string may carry a 0x or
// 0X prefix and must then contain exactly 64 hex characters.
func ParseHash(s string) (Hash, error) {
	hex := s
	if strings.HasPrefix(hex, "0x") || strings.HasPrefix(hex, "0X") {
		hex = hex[2:]
	}

	if len(hex) != HashLength*2 {
		return Hash{}, fmt.Errorf("%w: %q: expected %d hex characters, got %d", ErrInvalidHash, s, HashLength*2, len(hex))
	}

	data, err := hexutil.Decode("0x" + hex)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %q: %s", ErrInvalidHash, s, err)
	}

	var h Hash
	copy(h[:], data)

	return h, nil
}

// String returns the 0x prefixed hex encoding of the hash.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// IsZero reports if this is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(data []byte) error {
	v, err := ParseHash(string(data))
	if err != nil {
		return err
	}

	*h = v
	return nil
}
