// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"fmt"

	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
)

// ExtractAddressTypeInputIndexesFromPSBT returns map with address types and indexes to sign.
func ExtractAddressTypeInputIndexesFromPSBT(data []byte) (map[InputsHelpingKey][]int, error) {
	p, err := psbt.Parse(data, psbt.Config{})
	if err != nil {
		return nil, err
	}

	return InputIndexes(p)
}

// InputIndexes returns input indexes grouped by InputsHelpingKey stored in psbt global unknowns.
// NOTE: unknowns with longer keys belong to other protocols and are skipped.
func InputIndexes(p *psbt.Psbt) (map[InputsHelpingKey][]int, error) {
	var result = make(map[InputsHelpingKey][]int, 2)
	for _, unknown := range p.Global.Unknowns {
		if len(unknown.Key) != 1 {
			continue
		}

		key, err := InputsHelpingKeyFromBytes(unknown.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: 0x%02x", err, unknown.Key[0])
		}

		result[key] = make([]int, len(unknown.Value))
		for idx, val := range unknown.Value {
			if int(val) >= len(p.Inputs) {
				return nil, fmt.Errorf("%w: %d", psbt.ErrInputIndex, val)
			}

			result[key][idx] = int(val)
		}
	}

	return result, nil
}
