package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/tsengchain/tsengcoin-core/config"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// Validation errors.
var (
	ErrNoInputs           = errors.New("transaction has no inputs")
	ErrNoOutputs          = errors.New("transaction has no outputs")
	ErrDuplicateInput     = errors.New("duplicate input")
	ErrOutputOverflow     = errors.New("output values overflow")
	ErrZeroOutput         = errors.New("output value is zero")
	ErrMissingUnlock      = errors.New("input missing unlock script")
	ErrInvalidSig         = errors.New("invalid signature")
	ErrTooManyInputs      = errors.New("too many inputs")
	ErrTooManyOutputs     = errors.New("too many outputs")
	ErrScriptTooLarge     = errors.New("script too large")
	ErrNonCoinbaseSpecial = errors.New("only the first transaction may be coinbase")
)

// Validate checks transaction structure and basic rules. This does NOT
// check UTXO existence or execute scripts (that requires the UTXO set and
// is done by ValidateWithUTXOs).
func (t *Transaction) Validate() error {
	if len(t.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(t.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(t.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), config.MaxTxInputs)
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), config.MaxTxOutputs)
	}

	seen := make(map[types.Outpoint]bool, len(t.Inputs))
	for i, in := range t.Inputs {
		if in.PrevOut.IsCoinbase() {
			if i != 0 || len(t.Inputs) != 1 {
				return ErrNonCoinbaseSpecial
			}
			continue
		}
		if seen[in.PrevOut] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.PrevOut] = true
		if len(in.UnlockScript) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingUnlock)
		}
		if len(in.UnlockScript) > types.MaxScriptBytes {
			return fmt.Errorf("input %d: %w: %d bytes, max %d", i, ErrScriptTooLarge, len(in.UnlockScript), types.MaxScriptBytes)
		}
	}

	var totalOutput uint64
	for i, out := range t.Outputs {
		if out.Value == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if len(out.LockScript) > types.MaxScriptBytes {
			return fmt.Errorf("output %d: %w: %d bytes, max %d", i, ErrScriptTooLarge, len(out.LockScript), types.MaxScriptBytes)
		}
		if totalOutput > math.MaxUint64-out.Value {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		totalOutput += out.Value
	}

	return nil
}

// ValidateStructure is an alias for Validate, kept for call sites that read
// alongside ValidateWithUTXOs.
func (t *Transaction) ValidateStructure() error {
	return t.Validate()
}
