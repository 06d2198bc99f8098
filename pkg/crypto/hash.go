// Package crypto provides cryptographic primitives for ChainCore.
package crypto

import (
	"github.com/chaincore/node/pkg/types"
	sha256simd "github.com/minio/sha256-simd"
)

// Hash computes a single SHA-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return sha256simd.Sum256(data)
}

// DoubleHash computes sha256(sha256(data)), the content-identity hash used
// for transaction ids and merkle nodes. Block header hashes are not
// double-hashed: they use the single Hash (see block.Header.Hash).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// HashConcat double-hashes the concatenation of two hashes. Used for merkle
// tree construction, matching the same double-SHA-256 convention as leaves.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return DoubleHash(buf[:])
}
