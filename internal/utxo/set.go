// Package utxo manages the UTXO set.
package utxo

import "github.com/tsengchain/tsengcoin-core/pkg/types"

// UTXO represents an unspent transaction output.
type UTXO struct {
	Outpoint   types.Outpoint `json:"outpoint"`
	Value      uint64         `json:"value"`
	LockScript []byte         `json:"lock_script"`
	Height     uint64         `json:"height"`
	Coinbase   bool           `json:"coinbase"`
}

// Set is the interface for UTXO storage.
type Set interface {
	Get(outpoint types.Outpoint) (*UTXO, error)
	Put(utxo *UTXO) error
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
}
