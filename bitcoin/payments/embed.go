// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

// Embed returns null data (OP_RETURN) payment.
// Derivable from: Output or Data.
func Embed(in Payment, opts ...Option) (*Payment, error) {
	o := newOptions(in.Network, opts)
	if in.Output == nil && in.Data == nil {
		return nil, notEnoughData(NameEmbed)
	}

	p := &Payment{Name: NameEmbed, Network: o.Network, Data: in.Data}

	if in.Output != nil {
		elements, err := script.Decompile(in.Output)
		if err != nil || !isEmbedOutput(elements) {
			return nil, mismatch(NameEmbed, "output", "not a null data output script")
		}

		data, err := script.ToStack(elements[1:])
		if err != nil {
			return nil, mismatch(NameEmbed, "output", err.Error())
		}
		if o.Validate && p.Data != nil && !stacksEqual(p.Data, data) {
			return nil, mismatch(NameEmbed, "data", "conflicts with output")
		}

		p.Data = data
	}

	if len(p.Data) == 0 {
		return nil, mismatch(NameEmbed, "data", "at least one data push is required")
	}

	if in.Output != nil {
		p.Output = in.Output
	} else {
		p.Output = script.Compile(append([]script.Element{script.Op(script.OP_RETURN)}, script.FromStack(p.Data)...))
	}

	if o.MaxDataSize > 0 && len(p.Output) > o.MaxDataSize {
		return nil, mismatch(NameEmbed, "output", "%d bytes exceeds maximum of %d", len(p.Output), o.MaxDataSize)
	}

	return p, nil
}
