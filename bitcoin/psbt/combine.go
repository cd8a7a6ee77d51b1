// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"fmt"
)

// Combine returns union of the psbt and others, all of them must share the unsigned transaction.
// The result does not depend on the order of the psbts and repeated psbts do not change it.
// Fields present in several psbts with different values fail with ErrConflict.
func (p *Psbt) Combine(others ...*Psbt) (*Psbt, error) {
	combined := p.Clone()
	for _, other := range others {
		if !combined.Global.UnsignedTx.Equal(other.Global.UnsignedTx) {
			return nil, ErrTxMismatch
		}

		if err := mergeGlobal(&combined.Global, other.Global.clone()); err != nil {
			return nil, fmt.Errorf("global: %w", err)
		}
		for i := range combined.Inputs {
			if err := mergeInput(&combined.Inputs[i], other.Inputs[i].clone()); err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
		}
		for i := range combined.Outputs {
			if err := mergeOutput(&combined.Outputs[i], other.Outputs[i].clone()); err != nil {
				return nil, fmt.Errorf("output %d: %w", i, err)
			}
		}
	}

	log.Debugf("combined %d psbts of %s", len(others)+1, combined.Global.UnsignedTx.TxID())

	return combined, nil
}
