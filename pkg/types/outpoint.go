package types

import "fmt"

// Outpoint names a single output: the transaction that created it and its
// index within that transaction's output list. Inputs spend by Outpoint.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero reports whether o is the null outpoint used by coinbase inputs,
// which have nothing to reference.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}
