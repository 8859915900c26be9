package miner

import (
	"context"

	"github.com/tsengchain/tsengcoin-core/internal/consensus"
	"github.com/tsengchain/tsengcoin-core/pkg/block"
)

// Backend searches a prepared block's nonce space for a value that
// satisfies its header's difficulty target. Seal either returns with
// blk.Header.Nonce set to a winning value, or stops early with ctx.Err()
// if ctx is cancelled before one is found. cpuBackend is the only
// implementation; no OpenCL or CUDA backend exists in this repository.
type Backend interface {
	Seal(ctx context.Context, blk *block.Block) error
}

// cpuBackend is the always-present Backend: it delegates to the consensus
// engine's own nonce search (consensus.PoW's cancellable, optionally
// multi-threaded sealSingle/sealParallel loop), falling back to the plain
// Engine.Seal for any engine that doesn't support cancellation.
type cpuBackend struct {
	engine consensus.Engine
}

func newCPUBackend(engine consensus.Engine) *cpuBackend {
	return &cpuBackend{engine: engine}
}

func (b *cpuBackend) Seal(ctx context.Context, blk *block.Block) error {
	if pow, ok := b.engine.(*consensus.PoW); ok {
		return pow.SealWithCancel(ctx, blk)
	}
	return b.engine.Seal(blk)
}
