package cscript

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/keysource"
	"github.com/lightninglabs/btcid/record"
)

const (
	// MaxM is the largest number of required signatures of a multisig
	// script.
	MaxM = 7

	// MaxN is the largest number of keys of a multisig script.
	MaxN = 7
)

// checkKeyLength makes sure the key is a compressed or uncompressed
// serialized public key.
func checkKeyLength(pubKey []byte) error {
	switch len(pubKey) {
	case btcec.PubKeyBytesLenCompressed,
		keyproof.PubKeyBytesLenUncompressed:

		return nil

	default:
		return fmt.Errorf("%w: invalid key length %d",
			record.ErrInvalidKey, len(pubKey))
	}
}

// rootKeySource wraps a root key that scripts derive their keys from.
func rootKeySource(pubKey []byte,
	useHash160 bool) (*keysource.PublicKeySource, error) {

	var opts []keysource.Option
	if len(pubKey) == btcec.PubKeyBytesLenCompressed {
		opts = append(opts, keysource.WithCompressed())
	}
	if useHash160 {
		opts = append(opts, keysource.WithHash160())
	}

	return keysource.New(keysource.BinarySource(pubKey), opts...)
}

// slotMarker returns the escape sequence of a slot for n keys.
func slotMarker(n int) []byte {
	return []byte{EscapeByte, byte(n)}
}

// StandardP2PKH creates a pay-to-pubkey-hash script for keys derived from
// the given root key.
func StandardP2PKH(pubKey []byte, opts ...Option) (*ConstructedScript,
	error) {

	if err := checkKeyLength(pubKey); err != nil {
		return nil, err
	}

	template, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddOps(slotMarker(1)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, err
	}

	pks, err := rootKeySource(pubKey, true)
	if err != nil {
		return nil, err
	}

	return New(template, []*keysource.PublicKeySource{pks}, false, opts...)
}

// StandardP2PK creates a bare pay-to-pubkey script, optionally with the key
// hashed.
func StandardP2PK(pubKey []byte, useHash160 bool,
	opts ...Option) (*ConstructedScript, error) {

	if err := checkKeyLength(pubKey); err != nil {
		return nil, err
	}

	template, err := txscript.NewScriptBuilder().
		AddOps(slotMarker(1)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, err
	}

	pks, err := rootKeySource(pubKey, useHash160)
	if err != nil {
		return nil, err
	}

	return New(template, []*keysource.PublicKeySource{pks}, false, opts...)
}

// multisigKeySources validates the keys and M of a multisig script and wraps
// the keys.
func multisigKeySources(m int, pubKeys [][]byte,
	o *options) ([]*keysource.PublicKeySource, error) {

	for i, pubKey := range pubKeys {
		if err := checkKeyLength(pubKey); err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		if !o.engine.IsValidPublicKey(pubKey) {
			return nil, fmt.Errorf("%w: key %d is not on the curve",
				record.ErrInvalidKey, i)
		}
	}

	n := len(pubKeys)
	switch {
	case m <= 0 || m > MaxM:
		return nil, fmt.Errorf("%w: M must be between 1 and %d, got %d",
			record.ErrBadInput, MaxM, m)

	case n <= 0 || n > MaxN:
		return nil, fmt.Errorf("%w: N must be between 1 and %d, got %d",
			record.ErrBadInput, MaxN, n)

	case m > n:
		return nil, fmt.Errorf("%w: M=%d exceeds N=%d",
			record.ErrBadInput, m, n)
	}

	keys := make([]*keysource.PublicKeySource, n)
	for i, pubKey := range pubKeys {
		var err error
		keys[i], err = rootKeySource(pubKey, false)
		if err != nil {
			return nil, err
		}
	}

	return keys, nil
}

// smallIntOp returns the OP_1 to OP_16 opcode for n.
func smallIntOp(n int) byte {
	return txscript.OP_1 + byte(n-1)
}

// StandardMultisig creates an M-of-N multisig script whose keys form a single
// bundle, which is sorted when the script is built. The script is paid to
// through P2SH.
func StandardMultisig(m int, pubKeys [][]byte,
	opts ...Option) (*ConstructedScript, error) {

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	keys, err := multisigKeySources(m, pubKeys, o)
	if err != nil {
		return nil, err
	}

	template, err := txscript.NewScriptBuilder().
		AddOp(smallIntOp(m)).
		AddOps(slotMarker(len(keys))).
		AddOp(smallIntOp(len(keys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	if err != nil {
		return nil, err
	}

	return New(template, keys, true, opts...)
}

// UnsortedMultisig creates an M-of-N multisig script with one slot per key,
// so the keys keep the given order. The script is paid to through P2SH.
func UnsortedMultisig(m int, pubKeys [][]byte,
	opts ...Option) (*ConstructedScript, error) {

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	keys, err := multisigKeySources(m, pubKeys, o)
	if err != nil {
		return nil, err
	}

	builder := txscript.NewScriptBuilder().AddOp(smallIntOp(m))
	for range keys {
		builder.AddOps(slotMarker(1))
	}
	template, err := builder.
		AddOp(smallIntOp(len(keys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	if err != nil {
		return nil, err
	}

	return New(template, keys, true, opts...)
}
