// Package ledger implements the relational mirror of chain state described
// by the node's persistence contract: append-only blocks/transactions
// tables, a utxos table, an address_balances cache, and per-block
// mining_stats. It is a read-optimized secondary store, not the source of
// truth — the KV chain store (internal/chain) remains authoritative, and
// this store is rebuilt from it whenever the two could have diverged
// (startup recovery, fork resolution).
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chaincore/node/internal/utxo"
	"github.com/chaincore/node/pkg/block"
	"github.com/chaincore/node/pkg/tx"
	"github.com/chaincore/node/pkg/types"
)

// Store is the relational ledger store, backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite-backed ledger store at path
// and ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open ledger database at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer, avoids SQLITE_BUSY under our own load.

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scriptAddress returns the address paid by a pay-to-address output script.
// Only P2PKH outputs participate in the address balance cache; every other
// script type is outside the pay-to-address model this store tracks.
func scriptAddress(sc types.Script) (types.Address, bool) {
	if sc.Type != types.ScriptTypeP2PKH || len(sc.Data) != types.AddressSize {
		return types.Address{}, false
	}
	var addr types.Address
	copy(addr[:], sc.Data)
	return addr, true
}

// AppendBlock atomically mirrors a newly-applied block into the relational
// store: the block and transaction rows, UTXO set deltas, the
// address_balances cache, and a mining_stats row. It is idempotent — a
// block already present at its height is a no-op, so redelivery (e.g. a
// block reaching both the gossip handler and the sync loop) is harmless.
func (s *Store) AppendBlock(blk *block.Block, utxos *utxo.Store) error {
	h := blk.Header
	hash := blk.Hash()

	dbtx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer dbtx.Rollback()

	var exists int
	if err := dbtx.QueryRow(`SELECT 1 FROM blocks WHERE height = ?`, h.Height).Scan(&exists); err == nil {
		return nil // Already mirrored.
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("check existing block: %w", err)
	}

	_, err = dbtx.Exec(`INSERT INTO blocks
		(height, hash, version, prev_hash, merkle_root, timestamp, difficulty, nonce, validator_sig, tx_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.Height, hash.String(), h.Version, h.PrevHash.String(), h.MerkleRoot.String(),
		h.Timestamp, h.Difficulty, h.Nonce, h.ValidatorSig, len(blk.Transactions))
	if err != nil {
		return fmt.Errorf("insert block row: %w", err)
	}

	for i, transaction := range blk.Transactions {
		raw, err := json.Marshal(transaction)
		if err != nil {
			return fmt.Errorf("marshal tx %d: %w", i, err)
		}
		txHash := transaction.Hash()
		if _, err := dbtx.Exec(`INSERT OR REPLACE INTO transactions
			(hash, block_height, block_hash, tx_index, raw) VALUES (?, ?, ?, ?, ?)`,
			txHash.String(), h.Height, hash.String(), i, raw); err != nil {
			return fmt.Errorf("insert tx row %d: %w", i, err)
		}

		for _, in := range transaction.Inputs {
			if in.PrevOut.IsZero() {
				continue // Coinbase marker input, nothing to spend.
			}
			if err := spendUTXO(dbtx, in.PrevOut, h.Height); err != nil {
				return fmt.Errorf("spend utxo %s: %w", in.PrevOut, err)
			}
		}

		for idx, out := range transaction.Outputs {
			addr, ok := scriptAddress(out.Script)
			if !ok {
				continue
			}
			if err := addUTXO(dbtx, txHash, uint32(idx), addr, out.Value, out.Script.Type, h.Height, i == 0); err != nil {
				return fmt.Errorf("add utxo %s:%d: %w", txHash, idx, err)
			}
		}
	}

	var reward uint64
	var miner string
	if len(blk.Transactions) > 0 {
		coinbase := blk.Transactions[0]
		if len(coinbase.Outputs) > 0 {
			reward = coinbase.Outputs[0].Value
			if addr, ok := scriptAddress(coinbase.Outputs[0].Script); ok {
				miner = addr.String()
			}
		}
	}
	if _, err := dbtx.Exec(`INSERT INTO mining_stats
		(height, hash, difficulty, timestamp, reward, miner, tx_count) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.Height, hash.String(), h.Difficulty, h.Timestamp, reward, miner, len(blk.Transactions)); err != nil {
		return fmt.Errorf("insert mining_stats row: %w", err)
	}

	return dbtx.Commit()
}

// spendUTXO removes a spent output from the utxos table and decrements its
// address's cached balance. A miss is tolerated: the row may predate this
// store's last rebuild.
func spendUTXO(dbtx *sql.Tx, op types.Outpoint, height uint64) error {
	var addr string
	var value uint64
	err := dbtx.QueryRow(`SELECT address, value FROM utxos WHERE txid = ? AND output_index = ?`,
		op.TxID.String(), op.Index).Scan(&addr, &value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup utxo: %w", err)
	}

	if _, err := dbtx.Exec(`DELETE FROM utxos WHERE txid = ? AND output_index = ?`, op.TxID.String(), op.Index); err != nil {
		return fmt.Errorf("delete utxo: %w", err)
	}
	if _, err := dbtx.Exec(`UPDATE address_balances
		SET balance = balance - ?, utxo_count = utxo_count - 1, updated_height = ?
		WHERE address = ?`, value, height, addr); err != nil {
		return fmt.Errorf("decrement balance: %w", err)
	}
	return nil
}

// addUTXO records a new output in the utxos table and credits its address's
// cached balance.
func addUTXO(dbtx *sql.Tx, txid types.Hash, index uint32, addr types.Address, value uint64, scriptType types.ScriptType, height uint64, coinbase bool) error {
	if _, err := dbtx.Exec(`INSERT OR REPLACE INTO utxos
		(txid, output_index, address, value, script_type, height, coinbase) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		txid.String(), index, addr.String(), value, scriptType, height, coinbase); err != nil {
		return fmt.Errorf("insert utxo: %w", err)
	}
	if _, err := dbtx.Exec(`INSERT INTO address_balances (address, balance, utxo_count, updated_height)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(address) DO UPDATE SET
			balance = balance + excluded.balance,
			utxo_count = utxo_count + 1,
			updated_height = excluded.updated_height`,
		addr.String(), value, height); err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// RebuildUTXOAndBalances clears the utxos and address_balances tables and
// repopulates them from the authoritative KV UTXO set. It is idempotent —
// safe to call on every startup, and mandatory after any chain-replace
// (fork resolution), since a reorg can silently invalidate cached balances
// otherwise.
func (s *Store) RebuildUTXOAndBalances(utxos *utxo.Store) error {
	dbtx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin rebuild tx: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.Exec(`DELETE FROM utxos`); err != nil {
		return fmt.Errorf("clear utxos: %w", err)
	}
	if _, err := dbtx.Exec(`DELETE FROM address_balances`); err != nil {
		return fmt.Errorf("clear address_balances: %w", err)
	}

	err = utxos.ForEach(func(u *utxo.UTXO) error {
		addr, ok := scriptAddress(u.Script)
		if !ok {
			return nil
		}
		return addUTXO(dbtx, u.Outpoint.TxID, u.Outpoint.Index, addr, u.Value, u.Script.Type, u.Height, u.Coinbase)
	})
	if err != nil {
		return fmt.Errorf("rebuild from utxo set: %w", err)
	}

	return dbtx.Commit()
}

// GetBalance returns an address's cached balance and whether a cache row
// exists for it. A false ok means the caller should fall back to a live
// UTXO scan (e.g. an address never mirrored because it predates the store,
// or one with no activity yet).
func (s *Store) GetBalance(addr types.Address) (uint64, bool, error) {
	var balance uint64
	err := s.db.QueryRow(`SELECT balance FROM address_balances WHERE address = ?`, addr.String()).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query balance: %w", err)
	}
	return balance, true, nil
}

// LoadChain reconstructs every block mirrored in the store, ordered by
// height, from the blocks and transactions tables.
func (s *Store) LoadChain() ([]*block.Block, error) {
	rows, err := s.db.Query(`SELECT height, version, prev_hash, merkle_root, timestamp, difficulty, nonce, validator_sig
		FROM blocks ORDER BY height ASC`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*block.Block
	for rows.Next() {
		var height, timestamp, difficulty, nonce uint64
		var version uint32
		var prevHashHex, merkleRootHex string
		var validatorSig []byte
		if err := rows.Scan(&height, &version, &prevHashHex, &merkleRootHex, &timestamp, &difficulty, &nonce, &validatorSig); err != nil {
			return nil, fmt.Errorf("scan block row: %w", err)
		}

		prevHash, err := types.HexToHash(prevHashHex)
		if err != nil {
			return nil, fmt.Errorf("parse prev_hash at height %d: %w", height, err)
		}
		merkleRoot, err := types.HexToHash(merkleRootHex)
		if err != nil {
			return nil, fmt.Errorf("parse merkle_root at height %d: %w", height, err)
		}

		txs, err := s.loadTransactions(height)
		if err != nil {
			return nil, fmt.Errorf("load transactions at height %d: %w", height, err)
		}

		blocks = append(blocks, &block.Block{
			Header: &block.Header{
				Version:      version,
				PrevHash:     prevHash,
				MerkleRoot:   merkleRoot,
				Timestamp:    timestamp,
				Height:       height,
				Difficulty:   difficulty,
				Nonce:        nonce,
				ValidatorSig: validatorSig,
			},
			Transactions: txs,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return blocks, nil
}

func (s *Store) loadTransactions(height uint64) ([]*tx.Transaction, error) {
	rows, err := s.db.Query(`SELECT raw FROM transactions WHERE block_height = ? ORDER BY tx_index ASC`, height)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*tx.Transaction
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var t tx.Transaction
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("unmarshal tx: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}
