package chain

import (
	"math/big"

	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// State holds the current chain tip state.
type State struct {
	Height       uint64
	TipHash      types.Hash
	Supply       uint64   // Total coins in circulation (genesis alloc + cumulative rewards).
	CumulativeWork *big.Int // Sum of per-block work (2^256 / (target+1)) — drives fork choice.
	TipTimestamp uint64   // Timestamp of the current tip block.
}

// IsGenesis returns true if no blocks have been processed yet.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}

// blockWork computes the proof-of-work "work" a single block with the given
// target represents: 2^256 / (target + 1). Smaller targets (harder blocks)
// yield proportionally larger work values, so summing this across a branch
// gives a chain-length-independent measure for fork choice.
func blockWork(target *big.Int) *big.Int {
	if target == nil || target.Sign() <= 0 {
		return big.NewInt(1)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	numerator := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(numerator, denom)
}
