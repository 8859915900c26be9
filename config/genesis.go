package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants.
// 1 coin = 10^12 base units. All on-chain values are in base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// CoinbaseMaturity is the number of blocks a coinbase output must wait
// before it can be spent. Prevents issues during reorgs.
const CoinbaseMaturity uint64 = 20

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize  = 16 * 1024 // 16 KiB max block size, header + transactions
	MaxBlockTxs   = 500       // Max transactions per block (including coinbase)
	MaxTxInputs   = 2500      // Max inputs per transaction
	MaxTxOutputs  = 2500      // Max outputs per transaction
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

// ProtocolConfig holds consensus-critical rules. All nodes MUST agree on
// these values.
type ProtocolConfig struct {
	Consensus ConsensusRules `json:"consensus"`
}

// ConsensusRules defines how blocks are produced and validated. TsengCoin
// is PoW-only; there is no validator set or staking concept.
type ConsensusRules struct {
	BlockTime int `json:"block_time"` // Target seconds between blocks

	// InitialDifficultyTarget is the genesis block's difficulty target,
	// hex-encoded big-endian (smaller = harder).
	InitialDifficultyTarget string `json:"initial_difficulty_target"`
	DifficultyAdjustWindow  int    `json:"difficulty_adjust_window"` // Blocks between retargets

	BlockReward     uint64 `json:"block_reward"`
	MaxSupply       uint64 `json:"max_supply"`                 // 0 = unlimited
	HalvingInterval uint64 `json:"halving_interval,omitempty"` // 0 = no halving
	MinFeeRate      uint64 `json:"min_fee_rate"`                // base units per byte of SigningBytes
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// GenesisAllocAddress is the well-known address that receives the genesis
// allocation on both networks: base58check "2LuJkN1xDRRM2R2h2H4qnSspy4qmwoZfor",
// raw hash160 5686215dbe4915045db3def6ab7172a1bdf3e6e4.
const GenesisAllocAddress = "5686215dbe4915045db3def6ab7172a1bdf3e6e4"

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "tsengcoin-mainnet-1",
		ChainName: "TsengCoin Mainnet",
		Symbol:    "TSC",
		Timestamp: 1770734103, // 2026-02-10
		ExtraData: "TsengCoin Genesis",
		Alloc: map[string]uint64{
			GenesisAllocAddress: 100_000 * Coin,
		},
		Protocol: ProtocolConfig{
			Consensus: ConsensusRules{
				BlockTime:                120, // 2 minute target blocks
				InitialDifficultyTarget:  "00000fffff000000000000000000000000000000000000000000000000000",
				DifficultyAdjustWindow:   2016,
				BlockReward:              50 * Coin,
				MaxSupply:                21_000_000 * Coin,
				HalvingInterval:          210_000,
				MinFeeRate:               1, // 1 base unit per signing byte
			},
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration: same economics,
// a much easier initial target and a shorter retarget window for fast
// local iteration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "tsengcoin-testnet-1"
	g.ChainName = "TsengCoin Testnet"
	g.ExtraData = "TsengCoin Testnet Genesis"
	g.Protocol.Consensus.InitialDifficultyTarget = "0fffffff000000000000000000000000000000000000000000000000000000"
	g.Protocol.Consensus.DifficultyAdjustWindow = 20
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
	if g.Protocol.Consensus.InitialDifficultyTarget == "" {
		return fmt.Errorf("initial_difficulty_target is required")
	}
	if g.Protocol.Consensus.BlockTime <= 0 {
		return fmt.Errorf("block_time must be positive")
	}
	if g.Protocol.Consensus.BlockReward == 0 {
		return fmt.Errorf("block_reward must be positive")
	}
	if g.Protocol.Consensus.DifficultyAdjustWindow <= 0 {
		return fmt.Errorf("difficulty_adjust_window must be positive")
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

// Hash returns a single SHA-256 hash of the genesis configuration. Used to
// identify the chain and detect genesis mismatches between peers.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
