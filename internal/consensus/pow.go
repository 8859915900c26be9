package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/tsengchain/tsengcoin-core/pkg/block"
	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrZeroTarget       = errors.New("difficulty target must be > 0")
	ErrBadTarget        = errors.New("block difficulty target does not match expected")
)

// maxTarget is 2^256 - 1, the easiest possible target.
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// PoW implements proof-of-work consensus. The difficulty target is stored
// directly in the block header (consensus-enforced) as a 256-bit integer: a
// block hash is valid only if it is numerically <= the header's target.
// Smaller target means more work required. The engine itself holds no
// mutable state — all targets are derived from the chain and encoded in
// each block.
type PoW struct {
	InitialTarget   *big.Int // Starting target (from genesis)
	AdjustInterval  int      // Blocks between retargets (0 = no adjustment)
	TargetBlockTime int      // Target seconds between blocks

	// TargetFn is called by Prepare to compute the expected target for a new
	// block. Set by the node operator (tsengcoind). If nil, Prepare uses
	// InitialTarget.
	TargetFn func(height uint64) *big.Int

	// Threads controls the number of parallel mining goroutines.
	// 0 or 1 = single-threaded (default). Each goroutine searches a
	// strided partition of the nonce space.
	Threads int
}

// NewPoW creates a new PoW engine from a genesis difficulty target.
func NewPoW(initialTarget *big.Int, adjustInterval, targetBlockTime int) (*PoW, error) {
	if initialTarget == nil || initialTarget.Sign() <= 0 {
		return nil, ErrZeroTarget
	}
	return &PoW{
		InitialTarget:   new(big.Int).Set(initialTarget),
		AdjustInterval:  adjustInterval,
		TargetBlockTime: targetBlockTime,
	}, nil
}

// ShouldAdjust returns true if the target should be recalculated at this height.
func (p *PoW) ShouldAdjust(height uint64) bool {
	return height > 0 && p.AdjustInterval > 0 && height%uint64(p.AdjustInterval) == 0
}

// VerifyHeader checks that the block header hash meets the stated target.
// The target comes from the header itself (consensus-enforced).
func (p *PoW) VerifyHeader(header *block.Header) error {
	t := header.TargetInt()
	if t.Sign() <= 0 {
		return ErrZeroTarget
	}
	hash := crypto.Hash(header.SigningBytes())
	hashInt := new(big.Int).SetBytes(hash[:])
	if hashInt.Cmp(t) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// Prepare sets the block header's difficulty target for mining.
// If TargetFn is set, it computes the expected target from chain state.
// Otherwise, uses InitialTarget.
func (p *PoW) Prepare(header *block.Header) error {
	var t *big.Int
	if p.TargetFn != nil {
		t = p.TargetFn(header.Height)
	} else {
		t = p.InitialTarget
	}
	header.Target = block.TargetBytes(t)
	return nil
}

// Seal mines the block by iterating the nonce until the header hash meets
// the target already set in the header. If Threads > 1, mining runs in
// parallel goroutines.
func (p *PoW) Seal(blk *block.Block) error {
	return p.SealWithCancel(context.Background(), blk)
}

// SealWithCancel mines the block with cancellation support.
// When the context is cancelled, mining stops and ctx.Err() is returned.
// If Threads > 1, mining runs in parallel goroutines with strided nonce
// partitioning.
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.TargetInt().Sign() <= 0 {
		return ErrZeroTarget
	}

	threads := p.Threads
	if threads <= 1 {
		return p.sealSingle(ctx, blk)
	}
	return p.sealParallel(ctx, blk, threads)
}

// signingPrefix returns the header's signing bytes WITHOUT the trailing
// nonce. This lets each mining goroutine pre-compute the 116-byte prefix
// once and only append+hash the 8-byte nonce per iteration.
//
// The prefix is version(4) | prev_hash(32) | merkle_root(32) |
// timestamp(8) | height(8) | target(32), i.e. 29 four-byte words; the
// nonce follows it in the signing bytes. Only the CPU search uses it, and
// no SHA-256 midstate is precomputed from it.
func signingPrefix(h *block.Header) []byte {
	buf := make([]byte, 0, 116)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	target := h.Target
	if len(target) != 32 {
		target = block.TargetBytes(new(big.Int).SetBytes(target))
	}
	buf = append(buf, target...)
	return buf
}

// sealSingle mines with a single goroutine.
func (p *PoW) sealSingle(ctx context.Context, blk *block.Block) error {
	t := blk.Header.TargetInt()
	prefix := signingPrefix(blk.Header)
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	hashInt := new(big.Int)

	for nonce := uint64(0); ; nonce++ {
		// Check cancellation every 65536 iterations.
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
		hash := crypto.Hash(buf)
		hashInt.SetBytes(hash[:])
		if hashInt.Cmp(t) <= 0 {
			blk.Header.Nonce = nonce
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

// sealParallel mines with multiple goroutines, each searching a strided
// partition of the nonce space (goroutine i starts at nonce=i, step=threads).
func (p *PoW) sealParallel(ctx context.Context, blk *block.Block, threads int) error {
	t := blk.Header.TargetInt()
	prefix := signingPrefix(blk.Header)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		startNonce := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			buf := make([]byte, len(prefix)+8)
			copy(buf, prefix)
			hashInt := new(big.Int)

			for nonce := startNonce; ; nonce += stride {
				// Check cancellation every ~65536 iterations per goroutine.
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
				hash := crypto.Hash(buf)
				hashInt.SetBytes(hash[:])
				if hashInt.Cmp(t) <= 0 {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}

				// Overflow: would wrap around past max uint64.
				if nonce > ^uint64(0)-stride {
					select {
					case found <- result{err: fmt.Errorf("nonce space exhausted")}:
					default:
					}
					return
				}
			}
		}()
	}

	// Wait in background so goroutines are cleaned up.
	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return fmt.Errorf("nonce space exhausted")
		}
		if r.err != nil {
			return r.err
		}
		blk.Header.Nonce = r.nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpectedTarget computes the correct difficulty target for a block at the
// given height. prevTarget is the target from the block at height-1 (nil
// for height <= 1). getTimestamp retrieves a block's timestamp by height
// (for adjustment calculation).
func (p *PoW) ExpectedTarget(height uint64, prevTarget *big.Int, getTimestamp func(uint64) (uint64, error)) *big.Int {
	// First PoW block or no previous target: use initial.
	if height <= 1 || prevTarget == nil || prevTarget.Sign() <= 0 {
		return new(big.Int).Set(p.InitialTarget)
	}

	// Not at an adjustment boundary: carry forward previous target.
	if !p.ShouldAdjust(height) {
		return new(big.Int).Set(prevTarget)
	}

	// At adjustment boundary: compute from timestamps.
	interval := uint64(p.AdjustInterval)
	startTS, err := getTimestamp(height - interval)
	if err != nil {
		return new(big.Int).Set(prevTarget)
	}
	endTS, err := getTimestamp(height - 1)
	if err != nil {
		return new(big.Int).Set(prevTarget)
	}

	actual := int64(endTS - startTS)
	expected := int64(p.AdjustInterval) * int64(p.TargetBlockTime)
	return CalcNextTarget(prevTarget, actual, expected)
}

// VerifyTarget checks that a block header's stated difficulty target
// matches the expected target computed from chain history.
func (p *PoW) VerifyTarget(header *block.Header, prevTarget *big.Int, getTimestamp func(uint64) (uint64, error)) error {
	expected := p.ExpectedTarget(header.Height, prevTarget, getTimestamp)
	if header.TargetInt().Cmp(expected) != 0 {
		return fmt.Errorf("%w: height %d has target %x, want %x",
			ErrBadTarget, header.Height, header.Target, block.TargetBytes(expected))
	}
	return nil
}

// CalcNextTarget computes the new difficulty target after a retarget
// period. actualTimeSpan is the elapsed seconds for the last interval.
// expectedTimeSpan is interval * targetBlockTime. Blocks arriving slower
// than expected widen the target (easier); faster than expected narrows it
// (harder). The result is clamped to [oldTarget/4, oldTarget*4] and never
// allowed to exceed maxTarget or fall below 1.
func CalcNextTarget(currentTarget *big.Int, actualTimeSpan, expectedTimeSpan int64) *big.Int {
	if actualTimeSpan <= 0 {
		actualTimeSpan = 1
	}
	if expectedTimeSpan <= 0 {
		expectedTimeSpan = 1
	}

	// Clamp actual to [expected/4, expected*4] to limit adjustment per period.
	minSpan := expectedTimeSpan / 4
	maxSpan := expectedTimeSpan * 4
	if minSpan == 0 {
		minSpan = 1
	}
	if actualTimeSpan < minSpan {
		actualTimeSpan = minSpan
	}
	if actualTimeSpan > maxSpan {
		actualTimeSpan = maxSpan
	}

	// newTarget = currentTarget * actual / expected.
	cur := new(big.Int).Set(currentTarget)
	act := new(big.Int).SetInt64(actualTimeSpan)
	exp := new(big.Int).SetInt64(expectedTimeSpan)

	result := new(big.Int).Mul(cur, act)
	result.Div(result, exp)

	if result.Sign() <= 0 {
		return big.NewInt(1)
	}
	if result.Cmp(maxTarget) > 0 {
		return new(big.Int).Set(maxTarget)
	}
	return result
}
