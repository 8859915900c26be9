// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tsengchain/tsengcoin-core/internal/utxo"
	"github.com/tsengchain/tsengcoin-core/pkg/tx"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// OrphanTTL is how long an orphan transaction may sit in the orphan pool
// waiting for its missing input before it is purged.
const OrphanTTL = 2 * time.Hour

// Mempool errors.
var (
	ErrAlreadyExists     = errors.New("transaction already in mempool")
	ErrConflict          = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull          = errors.New("mempool is full")
	ErrValidation        = errors.New("transaction failed validation")
	ErrFeeTooLow         = errors.New("transaction fee below minimum")
	ErrCoinbaseNotMature = errors.New("coinbase output not mature")
	ErrMissingInput      = errors.New("transaction input not found, orphaned")
)

// entry wraps a transaction with its fee and metadata.
type entry struct {
	tx      *tx.Transaction
	txHash  types.Hash
	fee     uint64
	feeRate float64 // fee per byte of SigningBytes.
}

// orphanEntry wraps an orphaned transaction with the time it was received.
type orphanEntry struct {
	tx       *tx.Transaction
	received time.Time
}

// Pool holds unconfirmed transactions.
type Pool struct {
	mu         sync.RWMutex
	txs        map[types.Hash]*entry         // txHash -> entry
	spends     map[types.Outpoint]types.Hash // outpoint -> txHash (conflict index)
	maxSize    int
	minFeeRate uint64 // Minimum fee rate in base units per byte (0 = no minimum).
	utxos      tx.UTXOProvider

	// Orphan pool: transactions with an input whose outpoint is not (yet) in
	// the UTXO set. Outputs of pool transactions are not consulted, so a
	// transaction spending one is parked here too.
	orphans      map[types.Hash]*orphanEntry
	orphansByDep map[types.Outpoint][]types.Hash // missing outpoint -> orphan txHashes waiting on it
	orphanTTL    time.Duration
	maxOrphans   int

	// Coinbase maturity checking.
	utxoSet          utxo.Set      // For maturity checks (nil = disabled).
	heightFn         func() uint64 // Current chain height.
	coinbaseMaturity uint64        // Required confirmations (0 = disabled).
}

// New creates a new mempool with the given UTXO provider and max size.
func New(utxos tx.UTXOProvider, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &Pool{
		txs:          make(map[types.Hash]*entry),
		spends:       make(map[types.Outpoint]types.Hash),
		maxSize:      maxSize,
		utxos:        utxos,
		orphans:      make(map[types.Hash]*orphanEntry),
		orphansByDep: make(map[types.Outpoint][]types.Hash),
		orphanTTL:    OrphanTTL,
		maxOrphans:   maxSize / 10,
	}
}

// SetMinFeeRate sets the minimum fee rate (base units per byte) for transaction acceptance.
func (p *Pool) SetMinFeeRate(rate uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minFeeRate = rate
}

// MinFeeRate returns the current minimum fee rate (base units per byte).
func (p *Pool) MinFeeRate() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minFeeRate
}

// SetCoinbaseMaturity enables coinbase maturity checking.
func (p *Pool) SetCoinbaseMaturity(maturity uint64, heightFn func() uint64, set utxo.Set) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coinbaseMaturity = maturity
	p.heightFn = heightFn
	p.utxoSet = set
}

// Add validates and adds a transaction to the mempool.
// Returns the computed fee. Rejects duplicates and double-spend conflicts.
// A transaction whose input is missing from the UTXO set is parked in the
// orphan pool instead of being rejected outright, in case the missing
// output arrives in a block or another mempool transaction shortly after.
func (p *Pool) Add(transaction *tx.Transaction) (uint64, error) {
	fee, promoted, err := p.addLocked(transaction)
	for _, orphanTx := range promoted {
		p.Add(orphanTx)
	}
	return fee, err
}

// addLocked performs the actual validation and insertion under the pool
// lock, returning any orphans that became satisfiable as a result so the
// caller can re-attempt them outside the lock.
func (p *Pool) addLocked(transaction *tx.Transaction) (uint64, []*tx.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	txHash := transaction.Hash()

	// Reject duplicates.
	if _, exists := p.txs[txHash]; exists {
		return 0, nil, ErrAlreadyExists
	}

	// A standalone submission may never carry the coinbase sentinel: only a
	// block's dedicated coinbase transaction may, and that one never reaches
	// the mempool. Reject up front rather than letting it fall through the
	// conflict/orphan checks below, which treat the shared sentinel outpoint
	// as an ordinary (and falsely conflicting) prevout.
	for _, in := range transaction.Inputs {
		if in.PrevOut.IsCoinbase() {
			return 0, nil, fmt.Errorf("%w: input %s", tx.ErrUnexpectedCoinbase, in.PrevOut)
		}
	}

	// Check for double-spend conflicts.
	for _, in := range transaction.Inputs {
		if conflictHash, exists := p.spends[in.PrevOut]; exists {
			return 0, nil, fmt.Errorf("%w: input %s already spent by %s", ErrConflict, in.PrevOut, conflictHash)
		}
	}

	// If any input is missing from the UTXO set, park as an orphan. Outputs
	// of transactions already in the pool are not looked up here, so a
	// transaction spending one is parked as an orphan as well.
	for _, in := range transaction.Inputs {
		if p.utxos.HasUTXO(in.PrevOut) {
			continue
		}
		if _, pending := p.spends[in.PrevOut]; pending {
			continue
		}
		p.addOrphanLocked(transaction, txHash)
		return 0, nil, fmt.Errorf("%w: missing input %s", ErrMissingInput, in.PrevOut)
	}

	// Coinbase maturity check.
	if p.coinbaseMaturity > 0 && p.utxoSet != nil {
		currentHeight := p.heightFn()
		for _, in := range transaction.Inputs {
			u, uErr := p.utxoSet.Get(in.PrevOut)
			if uErr == nil && u.Coinbase && currentHeight-u.Height < p.coinbaseMaturity {
				return 0, nil, fmt.Errorf("%w: need %d confirmations, have %d",
					ErrCoinbaseNotMature, p.coinbaseMaturity, currentHeight-u.Height)
			}
		}
	}

	// UTXO-aware validation.
	fee, err := transaction.ValidateWithUTXOs(p.utxos)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Compute fee rate for minimum check and eviction comparison.
	sigBytes := len(transaction.SigningBytes())
	var feeRate float64
	if sigBytes > 0 {
		feeRate = float64(fee) / float64(sigBytes)
	}

	// Enforce minimum fee rate (fee per byte of SigningBytes).
	if p.minFeeRate > 0 {
		requiredFee := p.minFeeRate * uint64(sigBytes)
		if fee < requiredFee {
			return 0, nil, fmt.Errorf("%w: got %d, need %d (%d bytes × %d rate)", ErrFeeTooLow, fee, requiredFee, sigBytes, p.minFeeRate)
		}
	}

	// Check pool capacity — evict lowest fee-rate if new tx pays more.
	if len(p.txs) >= p.maxSize {
		lowestHash, lowestRate := p.findLowestFeeRate()
		if feeRate <= lowestRate {
			return 0, nil, ErrPoolFull
		}
		p.removeLocked(lowestHash)
	}

	e := &entry{
		tx:      transaction,
		txHash:  txHash,
		fee:     fee,
		feeRate: feeRate,
	}

	// Add to pool and conflict index.
	p.txs[txHash] = e
	for _, in := range transaction.Inputs {
		if !in.PrevOut.IsCoinbase() {
			p.spends[in.PrevOut] = txHash
		}
	}

	// This transaction's outputs may satisfy orphans waiting on it.
	promoted := p.collectPromotableOrphansLocked(txHash)

	return fee, promoted, nil
}

// addOrphanLocked stores a transaction in the orphan pool, indexed by each
// of its missing inputs. Must be called with p.mu held.
func (p *Pool) addOrphanLocked(transaction *tx.Transaction, txHash types.Hash) {
	if _, exists := p.orphans[txHash]; exists {
		return
	}
	if len(p.orphans) >= p.maxOrphans && p.maxOrphans > 0 {
		p.evictOldestOrphanLocked()
	}
	p.orphans[txHash] = &orphanEntry{tx: transaction, received: time.Now()}
	for _, in := range transaction.Inputs {
		if in.PrevOut.IsCoinbase() {
			continue
		}
		if p.utxos.HasUTXO(in.PrevOut) {
			continue
		}
		p.orphansByDep[in.PrevOut] = append(p.orphansByDep[in.PrevOut], txHash)
	}
}

// collectPromotableOrphansLocked removes from the orphan pool, and returns,
// every orphan transaction that was waiting on an output of txHash. The
// caller re-attempts these via Add once the pool lock is released — Add
// cannot be called recursively here since p.mu is already held.
// Must be called with p.mu held.
func (p *Pool) collectPromotableOrphansLocked(txHash types.Hash) []*tx.Transaction {
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	var promoted []*tx.Transaction
	for i := range e.tx.Outputs {
		dep := types.Outpoint{TxID: txHash, Index: uint32(i)}
		waiting := p.orphansByDep[dep]
		if len(waiting) == 0 {
			continue
		}
		delete(p.orphansByDep, dep)
		for _, orphanHash := range waiting {
			oe, ok := p.orphans[orphanHash]
			if !ok {
				continue
			}
			delete(p.orphans, orphanHash)
			p.removeOrphanDepsLocked(orphanHash, oe.tx)
			promoted = append(promoted, oe.tx)
		}
	}
	return promoted
}

// removeOrphanDepsLocked strips an orphan's entries from orphansByDep.
func (p *Pool) removeOrphanDepsLocked(txHash types.Hash, transaction *tx.Transaction) {
	for _, in := range transaction.Inputs {
		deps := p.orphansByDep[in.PrevOut]
		for i, h := range deps {
			if h == txHash {
				p.orphansByDep[in.PrevOut] = append(deps[:i], deps[i+1:]...)
				break
			}
		}
		if len(p.orphansByDep[in.PrevOut]) == 0 {
			delete(p.orphansByDep, in.PrevOut)
		}
	}
}

// evictOldestOrphanLocked drops the longest-resident orphan transaction.
func (p *Pool) evictOldestOrphanLocked() {
	var oldestHash types.Hash
	var oldestTime time.Time
	first := true
	for h, oe := range p.orphans {
		if first || oe.received.Before(oldestTime) {
			oldestHash = h
			oldestTime = oe.received
			first = false
		}
	}
	if !first {
		if oe, ok := p.orphans[oldestHash]; ok {
			p.removeOrphanDepsLocked(oldestHash, oe.tx)
		}
		delete(p.orphans, oldestHash)
	}
}

// ExpireOrphans removes orphan transactions that have exceeded OrphanTTL.
// Returns the number of orphans removed. Intended to be called periodically.
func (p *Pool) ExpireOrphans() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	expired := 0
	cutoff := time.Now().Add(-p.orphanTTL)
	for h, oe := range p.orphans {
		if oe.received.Before(cutoff) {
			p.removeOrphanDepsLocked(h, oe.tx)
			delete(p.orphans, h)
			expired++
		}
	}
	return expired
}

// OrphanCount returns the number of transactions currently parked as orphans.
func (p *Pool) OrphanCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.orphans)
}

// HasOrphan reports whether a transaction hash is currently parked as an orphan.
func (p *Pool) HasOrphan(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.orphans[txHash]
	return exists
}

// Remove removes a transaction from the mempool by hash.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

func (p *Pool) removeLocked(txHash types.Hash) {
	e, exists := p.txs[txHash]
	if !exists {
		return
	}
	// Clean up spend index.
	for _, in := range e.tx.Inputs {
		if !in.PrevOut.IsCoinbase() {
			delete(p.spends, in.PrevOut)
		}
	}
	delete(p.txs, txHash)
}

// RemoveConfirmed removes all transactions that were included in a block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.Hash())
	}
}

// Has checks if a transaction exists in the mempool.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a transaction from the mempool.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	return e.tx
}

// GetFee returns the fee for a transaction in the mempool (0 if not found).
func (p *Pool) GetFee(txHash types.Hash) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return 0
	}
	return e.fee
}

// Count returns the number of transactions in the mempool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Hashes returns the hashes of all transactions in the mempool.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([]types.Hash, 0, len(p.txs))
	for h := range p.txs {
		hashes = append(hashes, h)
	}
	return hashes
}

// findLowestFeeRate returns the hash and fee rate of the lowest fee-rate entry.
// Must be called with p.mu held.
func (p *Pool) findLowestFeeRate() (types.Hash, float64) {
	var lowestHash types.Hash
	lowestRate := math.MaxFloat64
	for h, e := range p.txs {
		if e.feeRate < lowestRate {
			lowestRate = e.feeRate
			lowestHash = h
		}
	}
	return lowestHash, lowestRate
}

// SelectForBlock returns transactions ordered by fee rate (highest first),
// up to the given limit.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}

	// Sort by fee rate descending.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].feeRate > entries[j].feeRate
	})

	if limit > len(entries) {
		limit = len(entries)
	}

	result := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		result[i] = entries[i].tx
	}
	return result
}
