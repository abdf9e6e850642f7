package payreq

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/keysource"
	"github.com/lightninglabs/btcid/record"
)

// VerifiedEntry is a recipient of a payment request whose keys were resolved.
type VerifiedEntry struct {
	// Name is the name of the recipient.
	Name string

	// Keys are the resolved keys of the script, in key source order.
	Keys []*btcec.PublicKey

	// PkScript is the output script to pay to.
	PkScript []byte

	// Address is the address of the script. It is only set if chain
	// parameters were passed to VerifyPaymentRequest and the script is
	// standard.
	Address btcutil.Address
}

type verifyOptions struct {
	params *ChainParams
}

// VerifyOption is a functional option for VerifyPaymentRequest.
type VerifyOption func(*verifyOptions)

// WithChainParams makes VerifyPaymentRequest derive the address of every
// entry on the given network.
func WithChainParams(params *ChainParams) VerifyOption {
	return func(o *verifyOptions) {
		o.params = params
	}
}

// VerifyPaymentRequest resolves the keys of every entry of the request by
// applying its key proofs to the root keys of the script, and materializes
// the output scripts. Entries are verified concurrently. The results are in
// entry order.
func VerifyPaymentRequest(ctx context.Context, req *PaymentRequest,
	engine keyproof.Engine, opts ...VerifyOption) ([]*VerifiedEntry,
	error) {

	o := &verifyOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if req == nil {
		return nil, fmt.Errorf("%w: missing payment request",
			record.ErrBadInput)
	}

	verify := func(ctx context.Context, idx int) (*VerifiedEntry, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		verified, err := verifyEntry(req.entries[idx], engine, o)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", idx, err)
		}

		return verified, nil
	}

	indices := make([]int, len(req.entries))
	for i := range indices {
		indices[i] = i
	}

	results, err := fn.ParMap(ctx, indices, verify)
	if err != nil {
		return nil, err
	}

	log.Debugf("Verified payment request with %d entries", len(results))

	return results, nil
}

// verifyEntry resolves the keys of a single entry.
func verifyEntry(entry Entry, engine keyproof.Engine,
	o *verifyOptions) (*VerifiedEntry, error) {

	var (
		script  = entry.Script
		sources = script.PubKeySources()
		proofs  = entry.Proof.Proofs()
	)
	if len(proofs) != len(sources) {
		return nil, fmt.Errorf("%w: %d key proofs for %d keys",
			record.ErrBadInput, len(proofs), len(sources))
	}

	keys := make([]*btcec.PublicKey, len(sources))
	for i, pks := range sources {
		key, err := resolveKey(pks, proofs[i], engine)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}

		keys[i] = key
	}

	pkScript, err := script.PkScript(keys)
	if err != nil {
		return nil, err
	}

	verified := &VerifiedEntry{
		Name:     entry.Name,
		Keys:     keys,
		PkScript: pkScript,
	}

	if o.params != nil {
		addr, err := script.Address(keys, o.params.Params)
		switch {
		// Non-standard scripts have no address.
		case errors.Is(err, record.ErrBadInput):
			log.Debugf("No address for script %v: %v",
				script.Disasm(), err)

		case err != nil:
			return nil, err

		default:
			verified.Address = addr
		}
	}

	return verified, nil
}

// resolveKey returns the key a key source stands for given its proof. Static
// keys are used as is, derived keys are the root key multiplied with the
// multipliers of the proof.
func resolveKey(pks *keysource.PublicKeySource,
	proof *PublicKeyRelationshipProof,
	engine keyproof.Engine) (*btcec.PublicKey, error) {

	switch {
	case pks.IsExternalSource():
		return nil, fmt.Errorf("%w: external key sources can't be "+
			"resolved", record.ErrBadInput)

	case pks.IsStealth():
		return nil, fmt.Errorf("%w: stealth keys can't be resolved",
			record.ErrBadInput)

	case pks.IsUserKey():
		return nil, fmt.Errorf("%w: user keys can't be resolved",
			record.ErrBadInput)
	}

	root, err := pks.PubKey()
	if err != nil {
		return nil, err
	}

	if pks.IsStatic() {
		if proof.NumMultipliers() != 0 {
			return nil, fmt.Errorf("%w: static key has a proof "+
				"with %d multipliers", record.ErrBadInput,
				proof.NumMultipliers())
		}

		return root, nil
	}

	return proof.Apply(engine, root)
}
