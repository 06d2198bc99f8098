package ledger

// schema creates the relational tables backing the ledger store: blocks,
// transactions, utxos, address_balances, and mining_stats. All five exist
// purely as a queryable mirror of the authoritative KV chain state — a
// crash between a committed block and this mirror is recovered by
// RebuildUTXOAndBalances, never by replaying these tables back into the
// chain.
const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	height        INTEGER PRIMARY KEY,
	hash          TEXT NOT NULL UNIQUE,
	version       INTEGER NOT NULL,
	prev_hash     TEXT NOT NULL,
	merkle_root   TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	difficulty    INTEGER NOT NULL,
	nonce         INTEGER NOT NULL,
	validator_sig BLOB,
	tx_count      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	hash         TEXT PRIMARY KEY,
	block_height INTEGER NOT NULL,
	block_hash   TEXT NOT NULL,
	tx_index     INTEGER NOT NULL,
	raw          BLOB NOT NULL,
	FOREIGN KEY(block_height) REFERENCES blocks(height)
);
CREATE INDEX IF NOT EXISTS idx_transactions_block ON transactions(block_height);

CREATE TABLE IF NOT EXISTS utxos (
	txid         TEXT NOT NULL,
	output_index INTEGER NOT NULL,
	address      TEXT NOT NULL,
	value        INTEGER NOT NULL,
	script_type  INTEGER NOT NULL,
	height       INTEGER NOT NULL,
	coinbase     INTEGER NOT NULL,
	PRIMARY KEY(txid, output_index)
);
CREATE INDEX IF NOT EXISTS idx_utxos_address ON utxos(address);

CREATE TABLE IF NOT EXISTS address_balances (
	address        TEXT PRIMARY KEY,
	balance        INTEGER NOT NULL,
	utxo_count     INTEGER NOT NULL,
	updated_height INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mining_stats (
	height     INTEGER PRIMARY KEY,
	hash       TEXT NOT NULL,
	difficulty INTEGER NOT NULL,
	timestamp  INTEGER NOT NULL,
	reward     INTEGER NOT NULL,
	miner      TEXT NOT NULL,
	tx_count   INTEGER NOT NULL
);
`
