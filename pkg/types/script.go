package types

import (
	"encoding/hex"
	"encoding/json"
)

// MaxScriptBytes bounds a single script (lock or unlock) to keep the VM's
// execution cost and a block's serialized size predictable.
const MaxScriptBytes = 10_000

// Script is a sequence of opcodes and pushed data, interpreted by package
// script. It carries no type tag: the only structure a consumer may assume
// is what executing it against an unlock script actually proves.
type Script struct {
	Code []byte `json:"code"`
}

// NewScript wraps raw bytecode as a Script.
func NewScript(code []byte) Script {
	return Script{Code: append([]byte(nil), code...)}
}

// IsEmpty returns true if the script carries no bytecode.
func (s Script) IsEmpty() bool {
	return len(s.Code) == 0
}

// scriptJSON is the JSON representation of a Script with hex-encoded code.
type scriptJSON struct {
	Code string `json:"code"`
}

// MarshalJSON encodes the script with hex-encoded bytecode.
func (s Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(scriptJSON{Code: hex.EncodeToString(s.Code)})
}

// UnmarshalJSON decodes a script with hex-encoded bytecode.
func (s *Script) UnmarshalJSON(data []byte) error {
	var j scriptJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if j.Code != "" {
		b, err := hex.DecodeString(j.Code)
		if err != nil {
			return err
		}
		s.Code = b
	}
	return nil
}
