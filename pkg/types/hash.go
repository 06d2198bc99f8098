// Package types defines the primitive wire and storage types shared by the
// ledger, mempool, consensus, and RPC layers.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the width, in bytes, of every digest in the system —
// block hashes, transaction IDs, chain IDs, and token IDs all share it.
const HashSize = 32

// Hash is a 256-bit digest, almost always the output of a double-SHA256.
type Hash [HashSize]byte

// ChainID identifies the node's ledger instance.
type ChainID Hash

// TokenID identifies a token type, derived from its issuance outpoint.
type TokenID Hash

// IsZero reports whether h is the all-zero digest, used to mark "no
// predecessor" (genesis) and "no previous output" (coinbase inputs).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes copies the digest into a freshly allocated slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HexToHash parses a 64-character hex string into a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func (c ChainID) IsZero() bool {
	return Hash(c).IsZero()
}

func (c ChainID) String() string {
	return Hash(c).String()
}

func (c ChainID) MarshalJSON() ([]byte, error) {
	return Hash(c).MarshalJSON()
}

func (c *ChainID) UnmarshalJSON(data []byte) error {
	return (*Hash)(c).UnmarshalJSON(data)
}

func (t TokenID) IsZero() bool {
	return Hash(t).IsZero()
}

func (t TokenID) String() string {
	return Hash(t).String()
}

func (t TokenID) MarshalJSON() ([]byte, error) {
	return Hash(t).MarshalJSON()
}

func (t *TokenID) UnmarshalJSON(data []byte) error {
	return (*Hash)(t).UnmarshalJSON(data)
}
