package chain

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/tsengchain/tsengcoin-core/config"
	"github.com/tsengchain/tsengcoin-core/pkg/block"
	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/tx"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// CreateGenesisBlock builds the genesis block from the genesis configuration.
// The genesis block has height 0, a zero PrevHash, and a single coinbase
// transaction that distributes the initial allocations.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	coinbase, err := buildCoinbaseTx(gen.Alloc)
	if err != nil {
		return nil, fmt.Errorf("build coinbase: %w", err)
	}

	target, ok := new(big.Int).SetString(gen.Protocol.Consensus.InitialDifficultyTarget, 16)
	if !ok {
		return nil, fmt.Errorf("invalid initial_difficulty_target %q", gen.Protocol.Consensus.InitialDifficultyTarget)
	}

	txs := []*tx.Transaction{coinbase}
	txHashes := []types.Hash{coinbase.Hash()}
	merkle := block.ComputeMerkleRoot(txHashes)

	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   types.Hash{}, // Zero for genesis.
		MerkleRoot: merkle,
		Timestamp:  gen.Timestamp,
		Height:     0,
		Target:     block.TargetBytes(target),
	}

	return block.NewBlock(header, txs), nil
}

// buildCoinbaseTx creates a coinbase transaction with the initial allocations.
// The coinbase has a single sentinel coinbase input (it creates coins from nothing).
// Each allocation becomes a P2PKH output.
func buildCoinbaseTx(alloc map[string]uint64) (*tx.Transaction, error) {
	// Sort addresses for deterministic ordering.
	addrs := make([]string, 0, len(alloc))
	for addr := range alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var outputs []tx.Output
	for _, addrStr := range addrs {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}

		outputs = append(outputs, tx.Output{
			Value:      alloc[addrStr],
			LockScript: script.MustP2PKHLockScript(addr.Bytes()),
		})
	}

	// If no allocations, create a single zero-value output so the block has a valid tx.
	if len(outputs) == 0 {
		outputs = []tx.Output{{
			Value:      0,
			LockScript: script.MustP2PKHLockScript(make([]byte, types.AddressSize)),
		}}
	}

	coinbase := &tx.Transaction{
		Version: 1,
		Inputs: []tx.Input{{
			PrevOut: types.Outpoint{Index: types.CoinbaseIndex}, // Coinbase sentinel.
		}},
		Outputs: outputs,
	}

	return coinbase, nil
}
