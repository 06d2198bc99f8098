package types

import (
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
	sha256simd "github.com/minio/sha256-simd"
)

// checksumBytes computes sha256(sha256(data)) for the Base58Check checksum.
// Duplicated from pkg/crypto rather than imported, since pkg/crypto imports
// pkg/types (for Hash) and importing back would cycle.
func checksumBytes(data []byte) [32]byte {
	first := sha256simd.Sum256(data)
	return sha256simd.Sum256(first[:])
}

// AddressSize is the length of an address payload in bytes (RIPEMD-160 digest).
const AddressSize = 20

// AddressVersion is the Base58Check version byte prepended to every address payload.
const AddressVersion = 0x00

// Address represents a 160-bit address (public key hash).
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the Base58Check-encoded address.
func (a Address) String() string {
	s, err := EncodeAddress(a)
	if err != nil {
		// Fallback to hex if encoding fails (should never happen).
		return hex.EncodeToString(a[:])
	}
	return s
}

// Hex returns the raw hex-encoded address payload without version/checksum.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address payload as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a Base58Check string.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a Base58Check or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a Base58Check address, falling back to raw 40-char hex
// for genesis allocations and other internal/test fixtures.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if isHex40(s) {
		return HexToAddress(s)
	}
	return DecodeAddress(s)
}

// HexToAddress converts a raw hex string to an Address.
// Returns an error if the string is not exactly 40 hex characters.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// isHex40 returns true if s is exactly 40 hex characters.
func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// EncodeAddress Base58Check-encodes an address: version byte || payload || 4-byte
// double-SHA-256 checksum, matching the wire contract's address codec.
func EncodeAddress(a Address) (string, error) {
	return base58CheckEncode(AddressVersion, a[:]), nil
}

// DecodeAddress decodes and verifies a Base58Check address string.
func DecodeAddress(s string) (Address, error) {
	payload, err := base58CheckDecode(s)
	if err != nil {
		return Address{}, err
	}
	if len(payload) != AddressSize {
		return Address{}, fmt.Errorf("address payload must be %d bytes, got %d", AddressSize, len(payload))
	}
	var a Address
	copy(a[:], payload)
	return a, nil
}

func base58CheckEncode(version byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+4)
	buf = append(buf, version)
	buf = append(buf, payload...)
	checksum := checksumBytes(buf)
	buf = append(buf, checksum[:4]...)
	return base58.Encode(buf)
}

func base58CheckDecode(s string) ([]byte, error) {
	buf, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58: %w", err)
	}
	if len(buf) < 5 {
		return nil, fmt.Errorf("address too short")
	}
	payload, checksum := buf[:len(buf)-4], buf[len(buf)-4:]
	want := checksumBytes(payload)
	for i := 0; i < 4; i++ {
		if checksum[i] != want[i] {
			return nil, fmt.Errorf("bad checksum")
		}
	}
	return payload[1:], nil // drop version byte
}
