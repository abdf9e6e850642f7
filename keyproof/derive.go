package keyproof

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightninglabs/btcid/record"
	lfn "github.com/lightningnetwork/lnd/fn/v2"
)

// DeriveChildPublicKeyWithProof derives the public key at the given path
// below rootKey and returns it together with the proof that links it to the
// root key. Every index of the path must be non-hardened, since hardened
// derivation requires the private key.
func DeriveChildPublicKeyWithProof(engine Engine, rootKey *btcec.PublicKey,
	chainCode [32]byte, path []uint32) (*btcec.PublicKey, *MultiplierProof,
	error) {

	if rootKey == nil {
		return nil, nil, fmt.Errorf("%w: missing root key",
			record.ErrInvalidKey)
	}

	// Check the whole path up front so we never hand out a partial
	// proof.
	for depth, index := range path {
		if index >= hdkeychain.HardenedKeyStart {
			return nil, nil, fmt.Errorf("%w: cannot generate proofs "+
				"along hardened paths, index %d at depth %d",
				record.ErrDerivation, index, depth)
		}
	}

	extKey := ExtendedPubKey{
		PubKey:    rootKey,
		ChainCode: chainCode,
	}
	mults := make([]Multiplier, 0, len(path))
	for _, index := range path {
		child, mult, err := engine.ChildKeyDerive(extKey, index)
		if err != nil {
			return nil, nil, derivationErr(
				fmt.Errorf("unable to derive child %d: %w",
					index, err),
			)
		}

		mults = append(mults, mult)
		extKey = child
	}

	proof := NewMultiplierProof(
		KeyFingerprint(rootKey), KeyFingerprint(extKey.PubKey), mults,
	)

	log.Debugf("Derived key %x at %v from root %x",
		extKey.PubKey.SerializeCompressed(), FormatPath(path),
		rootKey.SerializeCompressed())
	log.Tracef("Derivation proof: %v", spew.Sdump(proof))

	return extKey.PubKey, proof, nil
}

// ApplyProofToRootKey replays the proof on the root key and returns the
// derived key. If an expected key is given, the derived key must match it.
func ApplyProofToRootKey(engine Engine, rootKey *btcec.PublicKey,
	proof *MultiplierProof,
	expected lfn.Option[*btcec.PublicKey]) (*btcec.PublicKey, error) {

	switch {
	case rootKey == nil:
		return nil, fmt.Errorf("%w: missing root key",
			record.ErrInvalidKey)

	case proof == nil || proof.IsNull():
		return nil, fmt.Errorf("%w: null proof carries no derivation",
			record.ErrBadInput)
	}

	if KeyFingerprint(rootKey) != proof.SrcFingerprint() {
		return nil, fmt.Errorf("%w: source fingerprint of proof does "+
			"not match root key", record.ErrKeyMismatch)
	}

	finalKey, err := engine.ApplyMultipliers(rootKey, proof.Multipliers())
	if err != nil {
		return nil, derivationErr(err)
	}
	if finalKey == nil {
		return nil, fmt.Errorf("%w: elliptic curve violation",
			record.ErrDerivation)
	}

	if KeyFingerprint(finalKey) != proof.DstFingerprint() {
		return nil, fmt.Errorf("%w: destination fingerprint of proof "+
			"does not match derived key", record.ErrKeyMismatch)
	}

	var mismatch error
	expected.WhenSome(func(key *btcec.PublicKey) {
		if key == nil || !key.IsEqual(finalKey) {
			mismatch = fmt.Errorf("%w: computation did not yield "+
				"expected public key", record.ErrKeyMismatch)
		}
	})
	if mismatch != nil {
		return nil, mismatch
	}

	return finalKey, nil
}

// derivationErr makes sure errors returned by an engine are classified as
// derivation errors.
func derivationErr(err error) error {
	if errors.Is(err, record.ErrDerivation) {
		return err
	}

	return fmt.Errorf("%w: %v", record.ErrDerivation, err)
}
