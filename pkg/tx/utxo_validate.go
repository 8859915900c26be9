package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// UTXO-aware validation errors.
var (
	ErrInputNotFound      = errors.New("input UTXO not found")
	ErrInsufficientFee    = errors.New("insufficient fee")
	ErrInputOverflow      = errors.New("input values overflow")
	ErrScriptFailed       = errors.New("unlock script does not satisfy lock script")
	ErrUnexpectedCoinbase = errors.New("coinbase sentinel input outside of a block's dedicated coinbase transaction")
)

// UTXOProvider provides read-only access to the UTXO set for validation.
type UTXOProvider interface {
	GetUTXO(outpoint types.Outpoint) (value uint64, lockScript []byte, err error)
	HasUTXO(outpoint types.Outpoint) bool
}

// ValidateWithUTXOs performs full validation of a standalone, non-coinbase
// transaction against the UTXO set, implementing the ordered checks a
// transaction must pass before it may enter the mempool or be accepted as
// one of a block's non-coinbase transactions:
//
//  1. structural validation (Validate)
//  2. no input carries the coinbase sentinel outpoint — only a block's
//     dedicated coinbase transaction may do that, and it is never routed
//     through this function (the chain validates it separately, alongside
//     the block reward/fee accounting)
//  3. every input's prevout exists in the UTXO set
//  4. each input's unlock script, run against its UTXO's lock script, leaves
//     a true result on the stack (spend authorization)
//  5. input values do not overflow when summed
//  6. output values do not overflow when summed (Validate already checked this)
//  7. total input value >= total output value (fee is non-negative)
//
// Checks 3 to 5 run input by input, in input order.
//
// Returns the fee (inputs - outputs) on success.
func (t *Transaction) ValidateWithUTXOs(provider UTXOProvider) (uint64, error) {
	if err := t.ValidateStructure(); err != nil {
		return 0, err
	}

	for i, in := range t.Inputs {
		if in.PrevOut.IsCoinbase() {
			return 0, fmt.Errorf("input %d: %w", i, ErrUnexpectedCoinbase)
		}
	}

	sigHash := t.SigHash()

	var totalInput uint64
	for i, in := range t.Inputs {
		if !provider.HasUTXO(in.PrevOut) {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrInputNotFound)
		}
		value, lockScript, err := provider.GetUTXO(in.PrevOut)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		ok, err := script.Execute(in.UnlockScript, lockScript, sigHash, nil)
		if err != nil || !ok {
			return 0, fmt.Errorf("input %d: %w: %v", i, ErrScriptFailed, err)
		}

		if totalInput > math.MaxUint64-value {
			return 0, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += value
	}

	totalOutput, err := t.TotalOutputValue()
	if err != nil {
		return 0, fmt.Errorf("output overflow: %w", err)
	}
	if totalInput < totalOutput {
		return 0, fmt.Errorf("%w: inputs=%d outputs=%d", ErrInsufficientFee, totalInput, totalOutput)
	}

	return totalInput - totalOutput, nil
}
