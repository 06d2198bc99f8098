package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chaincore/node/pkg/crypto"
	"github.com/chaincore/node/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants.
// 1 coin = 10^8 base units (8 fractional digits, per the wire contract).
const (
	Decimals = 8
	Coin     = 100_000_000 // 10^8 base units per coin

	MilliCoin = Coin / 1000 // 10^5 base units (0.001 coin)
)

// CoinbaseMaturity is the number of blocks a coinbase output must wait
// before it can be spent. Prevents issues during reorgs.
const CoinbaseMaturity uint64 = 20

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize  = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs   = 500       // Max transactions per block (including coinbase)
	MaxTxInputs   = 2500      // Max inputs per transaction
	MaxTxOutputs  = 2500      // Max outputs per transaction
	MaxScriptData = 65_536    // 64 KB max script data per output
)

// Genesis holds the genesis block configuration and protocol rules.
// This is immutable after chain launch - changes require a hard fork.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	// Genesis block
	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Initial allocations (address -> balance in base units)
	Alloc map[string]uint64 `json:"alloc"`

	// Protocol rules
	Protocol ProtocolConfig `json:"protocol"`
}

// ForkSchedule defines block heights at which protocol upgrades activate.
// A zero value means the fork is not scheduled.
type ForkSchedule struct {
	// Future forks are added here as fields.
}

// IsActive returns true if a fork at forkHeight has activated at currentHeight.
// Returns false if forkHeight is 0 (not scheduled).
func (f *ForkSchedule) IsActive(forkHeight, currentHeight uint64) bool {
	return forkHeight > 0 && currentHeight >= forkHeight
}

// ProtocolConfig holds consensus-critical rules. All nodes MUST agree on these values.
type ProtocolConfig struct {
	Consensus ConsensusRules `json:"consensus"`
	Forks     ForkSchedule   `json:"forks,omitempty"`
}

// ConsensusRules defines how blocks are produced, validated, and retargeted.
// Difficulty here is a divisor of the maximum 256-bit target:
// target = MaxUint256 / difficulty (see consensus.PoW). It is not a bit count,
// and the target is not computed by a shift.
type ConsensusRules struct {
	BlockTime int `json:"block_time"` // TARGET_BLOCK_TIME, target seconds between blocks

	InitialDifficulty uint64 `json:"initial_difficulty"` // CONFIG_DIFFICULTY / genesis difficulty
	DifficultyAdjust  int    `json:"difficulty_adjust"`  // ADJUST_INTERVAL, blocks between retargets
	AdjustEnabled     bool   `json:"adjust_enabled"`      // DIFFICULTY_ADJUSTMENT_ENABLED
	MaxDifficultyStep uint64 `json:"max_difficulty_step"` // MAX_STEP
	MinDifficulty     uint64 `json:"min_difficulty"`
	MaxDifficulty     uint64 `json:"max_difficulty"`

	BlockReward uint64 `json:"block_reward"`       // base units per block
	MaxSupply   uint64 `json:"max_supply"`         // total coin cap (0 = unlimited)
	MinFeeRate  uint64 `json:"min_fee_rate"`       // minimum fee rate, base units per signing-byte
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
// The genesis block is built deterministically from this configuration by
// chain.CreateGenesisBlock, so it is byte-identical across all nodes.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "chaincore-mainnet-1",
		ChainName: "ChainCore Mainnet",
		Symbol:    "CCR",
		Timestamp: 1770734103,
		ExtraData: "ChainCore Genesis",
		Alloc:     map[string]uint64{},
		Protocol: ProtocolConfig{
			Consensus: ConsensusRules{
				BlockTime:         600, // 10 minute blocks
				InitialDifficulty: 2,   // genesis difficulty, per spec
				DifficultyAdjust:  10,  // ADJUST_INTERVAL
				AdjustEnabled:     true,
				MaxDifficultyStep: 4, // MAX_STEP
				MinDifficulty:     1,
				MaxDifficulty:     64,
				BlockReward:       50 * Coin,
				MaxSupply:         0, // unlimited
				MinFeeRate:        1,
			},
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration: same shape and
// starting difficulty, faster blocks and no minimum fee rate so tests and
// local miners make progress.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "chaincore-testnet-1"
	g.ChainName = "ChainCore Testnet"
	g.ExtraData = "ChainCore Testnet Genesis"
	g.Protocol.Consensus.BlockTime = 5
	g.Protocol.Consensus.InitialDifficulty = 2
	g.Protocol.Consensus.MinFeeRate = 0
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}

	if g.Protocol.Consensus.InitialDifficulty == 0 {
		return fmt.Errorf("initial_difficulty must be positive")
	}
	if g.Protocol.Consensus.BlockTime <= 0 {
		return fmt.Errorf("block_time must be positive")
	}
	if g.Protocol.Consensus.BlockReward == 0 {
		return fmt.Errorf("block_reward must be positive")
	}
	if g.Protocol.Consensus.MinDifficulty == 0 || g.Protocol.Consensus.MaxDifficulty < g.Protocol.Consensus.MinDifficulty {
		return fmt.Errorf("min_difficulty/max_difficulty bounds are invalid")
	}

	var totalAlloc uint64
	for addrStr, v := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		totalAlloc += v
	}
	if g.Protocol.Consensus.MaxSupply > 0 && totalAlloc > g.Protocol.Consensus.MaxSupply {
		return fmt.Errorf("genesis allocations (%d) exceed max_supply (%d)",
			totalAlloc, g.Protocol.Consensus.MaxSupply)
	}

	return nil
}

// Hash returns a content hash of the genesis configuration.
// Used to identify the chain and detect genesis mismatches between peers.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.DoubleHash(data), nil
}
