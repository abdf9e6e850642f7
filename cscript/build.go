package cscript

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/btcid/record"
)

// slotData returns the script data of every key of the script. A nil entry
// in keys means the raw source of the key source is the key itself.
func (c *ConstructedScript) slotData(keys []*btcec.PublicKey) ([][]byte,
	error) {

	if keys != nil && len(keys) != len(c.keys) {
		return nil, fmt.Errorf("%w: script has %d keys, got %d",
			record.ErrBadInput, len(c.keys), len(keys))
	}

	data := make([][]byte, len(c.keys))
	for i, pks := range c.keys {
		var key *btcec.PublicKey
		if keys != nil {
			key = keys[i]
		}

		if key == nil {
			var err error
			key, err = pks.PubKey()
			if err != nil {
				return nil, fmt.Errorf("key %d: %w", i, err)
			}
		}

		data[i] = pks.ScriptData(key)
	}

	return data, nil
}

// RedeemScript fills the slots of the template with the given keys, which
// are aligned with PubKeySources. The keys of bundles with more than one key
// are sorted before insertion.
func (c *ConstructedScript) RedeemScript(keys []*btcec.PublicKey) ([]byte,
	error) {

	data, err := c.slotData(keys)
	if err != nil {
		return nil, err
	}

	var (
		builder   = txscript.NewScriptBuilder()
		start     int
		bundleIdx int
	)
	for _, slot := range c.slots {
		builder.AddOps(c.template[start:slot.Offset])
		start = slot.Offset + 2

		if slot.IsLiteral() {
			builder.AddOp(EscapeByte)
			continue
		}

		r := c.bundles[bundleIdx]
		bundleIdx++

		bundle := data[r.Start:r.End:r.End]
		if len(bundle) > 1 {
			bundle = slices.Clone(bundle)
			slices.SortFunc(bundle, bytes.Compare)
		}
		for _, keyData := range bundle {
			builder.AddData(keyData)
		}
	}
	builder.AddOps(c.template[start:])

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to build script: %v",
			record.ErrBadInput, err)
	}

	return script, nil
}

// PkScript returns the output script paying to the script filled with the
// given keys. Scripts that use P2SH are wrapped accordingly.
func (c *ConstructedScript) PkScript(keys []*btcec.PublicKey) ([]byte,
	error) {

	redeemScript, err := c.RedeemScript(keys)
	if err != nil {
		return nil, err
	}

	if !c.useP2SH {
		return redeemScript, nil
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
}

// Address returns the address of the script filled with the given keys on
// the given network.
func (c *ConstructedScript) Address(keys []*btcec.PublicKey,
	params *chaincfg.Params) (btcutil.Address, error) {

	redeemScript, err := c.RedeemScript(keys)
	if err != nil {
		return nil, err
	}

	if c.useP2SH {
		return btcutil.NewAddressScriptHash(redeemScript, params)
	}

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(redeemScript, params)
	if err != nil {
		return nil, err
	}
	if len(addrs) != 1 {
		return nil, fmt.Errorf("%w: script has %d addresses",
			record.ErrBadInput, len(addrs))
	}

	return addrs[0], nil
}
