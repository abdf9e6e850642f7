package keyproof

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/lightninglabs/btcid/record"
)

// ExtendedPubKey is a public key together with the chain code used to derive
// its children.
type ExtendedPubKey struct {
	// PubKey is the public key.
	PubKey *btcec.PublicKey

	// ChainCode is the BIP32 chain code of the key.
	ChainCode [32]byte
}

// Engine is the elliptic curve collaborator that performs the derivation
// steps. Implementations must be deterministic and free of side effects.
type Engine interface {
	// ChildKeyDerive performs a single non-hardened derivation step and
	// returns the child together with the multiplier that was applied to
	// the parent key.
	ChildKeyDerive(parent ExtendedPubKey, index uint32) (ExtendedPubKey,
		Multiplier, error)

	// ApplyMultipliers multiplies the given key with every multiplier in
	// order.
	ApplyMultipliers(pubKey *btcec.PublicKey,
		multipliers []Multiplier) (*btcec.PublicKey, error)

	// IsValidPublicKey returns true if the serialized key is a valid point
	// on the curve.
	IsValidPublicKey(pubKey []byte) bool
}

// Secp256k1Engine is an Engine that uses multiplicative BIP32-style
// derivation on secp256k1: the left half of
// HMAC-SHA512(chainCode, serP(K) || ser32(i)) is the multiplier m, the child
// key is m*K and the right half is the child chain code.
type Secp256k1Engine struct{}

// NewSecp256k1Engine returns a new secp256k1 engine.
func NewSecp256k1Engine() *Secp256k1Engine {
	return &Secp256k1Engine{}
}

// ChildKeyDerive performs a single derivation step.
//
// NOTE: This is part of the Engine interface.
func (e *Secp256k1Engine) ChildKeyDerive(parent ExtendedPubKey,
	index uint32) (ExtendedPubKey, Multiplier, error) {

	var mult Multiplier
	if index >= hdkeychain.HardenedKeyStart {
		return ExtendedPubKey{}, mult, fmt.Errorf("%w: index %d is "+
			"hardened", record.ErrDerivation, index)
	}
	if parent.PubKey == nil {
		return ExtendedPubKey{}, mult, fmt.Errorf("%w: missing parent "+
			"key", record.ErrDerivation)
	}

	var indexBytes [4]byte
	binary.BigEndian.PutUint32(indexBytes[:], index)

	mac := hmac.New(sha512.New, parent.ChainCode[:])
	_, _ = mac.Write(parent.PubKey.SerializeCompressed())
	_, _ = mac.Write(indexBytes[:])
	ilr := mac.Sum(nil)

	copy(mult[:], ilr[:MultiplierSize])
	child, err := multiply(parent.PubKey, mult)
	if err != nil {
		return ExtendedPubKey{}, mult, fmt.Errorf("child %d: %w", index,
			err)
	}

	childKey := ExtendedPubKey{
		PubKey: child,
	}
	copy(childKey.ChainCode[:], ilr[MultiplierSize:])

	return childKey, mult, nil
}

// ApplyMultipliers multiplies the key with every multiplier in order.
//
// NOTE: This is part of the Engine interface.
func (e *Secp256k1Engine) ApplyMultipliers(pubKey *btcec.PublicKey,
	multipliers []Multiplier) (*btcec.PublicKey, error) {

	if pubKey == nil {
		return nil, fmt.Errorf("%w: missing key", record.ErrDerivation)
	}

	key := pubKey
	for i, mult := range multipliers {
		var err error
		key, err = multiply(key, mult)
		if err != nil {
			return nil, fmt.Errorf("multiplier %d: %w", i, err)
		}
	}

	return key, nil
}

// IsValidPublicKey returns true if the key is a 33 or 65 byte serialized
// point on the curve.
//
// NOTE: This is part of the Engine interface.
func (e *Secp256k1Engine) IsValidPublicKey(pubKey []byte) bool {
	switch len(pubKey) {
	case btcec.PubKeyBytesLenCompressed, PubKeyBytesLenUncompressed:
	default:
		return false
	}

	_, err := btcec.ParsePubKey(pubKey)
	return err == nil
}

// multiply returns mult*key. The multiplier must be a non-zero scalar below
// the curve order.
func multiply(key *btcec.PublicKey, mult Multiplier) (*btcec.PublicKey,
	error) {

	var k btcec.ModNScalar
	overflow := k.SetBytes((*[MultiplierSize]byte)(&mult))
	if overflow != 0 || k.IsZero() {
		return nil, fmt.Errorf("%w: multiplier %x is not a valid "+
			"scalar", record.ErrDerivation, mult[:])
	}

	var point, result btcec.JacobianPoint
	key.AsJacobian(&point)
	btcec.ScalarMultNonConst(&k, &point, &result)

	if (result.X.IsZero() && result.Y.IsZero()) || result.Z.IsZero() {
		return nil, fmt.Errorf("%w: result is the point at infinity",
			record.ErrDerivation)
	}

	result.ToAffine()
	return btcec.NewPublicKey(&result.X, &result.Y), nil
}

// A compile-time assertion to ensure Secp256k1Engine meets the Engine
// interface.
var _ Engine = (*Secp256k1Engine)(nil)
