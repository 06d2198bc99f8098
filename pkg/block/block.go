// Package block defines the block wire format and its structural
// validation rules.
package block

import "github.com/chaincore/node/pkg/tx"

// Block is a header paired with the transactions it commits to via the
// header's merkle root. Transactions[0] is always the coinbase.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock assembles a block from an already-built header and transaction
// set. It does not compute the merkle root or hash — callers that mutate
// Transactions must recompute Header.MerkleRoot before validation.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}
