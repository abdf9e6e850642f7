package payreq

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightninglabs/btcid/cscript"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/record"
)

const (
	// PKRPVersion is the version of public key relationship proofs.
	PKRPVersion uint8 = 0

	// SRPVersion is the version of script relationship proofs.
	SRPVersion uint8 = 0
)

type options struct {
	version uint8
}

// Option is a functional option for the constructors of this package.
type Option func(*options)

// WithVersion overrides the record version.
func WithVersion(version uint8) Option {
	return func(o *options) {
		o.version = version
	}
}

func applyOptions(version uint8, opts []Option) *options {
	o := &options{
		version: version,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// PublicKeyRelationshipProof is the list of multipliers that links a root key
// to the key it is used for. A proof without multipliers is used for static
// keys.
type PublicKeyRelationshipProof struct {
	version     uint8
	multipliers []keyproof.Multiplier
}

// NewPublicKeyRelationshipProof creates a proof from the given multipliers,
// which are copied.
func NewPublicKeyRelationshipProof(mults []keyproof.Multiplier,
	opts ...Option) (*PublicKeyRelationshipProof, error) {

	if len(mults) > keyproof.MaxMultipliers {
		return nil, fmt.Errorf("%w: %d multipliers exceed maximum of "+
			"%d", record.ErrBadInput, len(mults),
			keyproof.MaxMultipliers)
	}

	o := applyOptions(PKRPVersion, opts)

	var multipliers []keyproof.Multiplier
	if len(mults) > 0 {
		multipliers = fn.CopySlice(mults)
	}

	return &PublicKeyRelationshipProof{
		version:     o.version,
		multipliers: multipliers,
	}, nil
}

// FromMultiplierProof turns a derivation proof into a relationship proof. A
// null proof results in a proof without multipliers.
func FromMultiplierProof(mp *keyproof.MultiplierProof,
	opts ...Option) (*PublicKeyRelationshipProof, error) {

	if mp == nil {
		return nil, fmt.Errorf("%w: missing multiplier proof",
			record.ErrBadInput)
	}

	if mp.IsNull() {
		return NewPublicKeyRelationshipProof(nil, opts...)
	}

	return NewPublicKeyRelationshipProof(mp.Multipliers(), opts...)
}

// Version returns the record version.
func (p *PublicKeyRelationshipProof) Version() uint8 {
	return p.version
}

// Multipliers returns a copy of the multipliers.
func (p *PublicKeyRelationshipProof) Multipliers() []keyproof.Multiplier {
	return fn.CopySlice(p.multipliers)
}

// NumMultipliers returns the number of multipliers.
func (p *PublicKeyRelationshipProof) NumMultipliers() int {
	return len(p.multipliers)
}

// Copy returns a deep copy of the proof.
func (p *PublicKeyRelationshipProof) Copy() *PublicKeyRelationshipProof {
	return &PublicKeyRelationshipProof{
		version:     p.version,
		multipliers: fn.CopySlice(p.multipliers),
	}
}

// Apply multiplies the root key with every multiplier of the proof. A proof
// without multipliers yields the root key itself.
func (p *PublicKeyRelationshipProof) Apply(engine keyproof.Engine,
	root *btcec.PublicKey) (*btcec.PublicKey, error) {

	if root == nil {
		return nil, fmt.Errorf("%w: missing root key",
			record.ErrInvalidKey)
	}
	if len(p.multipliers) == 0 {
		return root, nil
	}

	key, err := engine.ApplyMultipliers(root, p.Multipliers())
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %v", record.ErrDerivation, err)

	case key == nil:
		return nil, fmt.Errorf("%w: elliptic curve violation",
			record.ErrDerivation)
	}

	return key, nil
}

// Encode writes the version, the multiplier count and every multiplier as a
// length-prefixed field.
func (p *PublicKeyRelationshipProof) Encode(w io.Writer) error {
	if err := record.WriteUint8(w, p.version); err != nil {
		return err
	}
	err := record.WriteVarInt(w, uint64(len(p.multipliers)))
	if err != nil {
		return err
	}
	for _, mult := range p.multipliers {
		if err := record.WriteVarBytes(w, mult[:]); err != nil {
			return err
		}
	}

	return nil
}

// Bytes returns the serialized proof.
func (p *PublicKeyRelationshipProof) Bytes() ([]byte, error) {
	return fn.Encode(p)
}

// DecodePublicKeyRelationshipProof reads a proof written by Encode.
func DecodePublicKeyRelationshipProof(r io.Reader,
	opts ...record.DecodeOption) (*PublicKeyRelationshipProof, error) {

	o := record.ApplyDecodeOptions(opts...)

	version, err := record.ReadUint8(r, "version")
	if err != nil {
		return nil, err
	}
	err = record.CheckVersion(
		o.VersionPolicy, "public key relationship proof", version,
		PKRPVersion,
	)
	if err != nil {
		return nil, err
	}

	count, err := record.ReadCount(
		r, keyproof.MaxMultipliers, "multiplier",
	)
	if err != nil {
		return nil, err
	}

	var mults []keyproof.Multiplier
	for i := uint64(0); i < count; i++ {
		b, err := record.ReadVarBytes(r, "multiplier")
		if err != nil {
			return nil, fmt.Errorf("proof declares %d multipliers, "+
				"only %d present: %w", count, i, err)
		}
		if len(b) != keyproof.MultiplierSize {
			return nil, fmt.Errorf("%w: multiplier %d has %d bytes, "+
				"expected %d", record.ErrFormat, i, len(b),
				keyproof.MultiplierSize)
		}

		mults = append(mults, keyproof.Multiplier(b))
	}

	return &PublicKeyRelationshipProof{
		version:     version,
		multipliers: mults,
	}, nil
}

// ScriptRelationshipProof holds one public key relationship proof for every
// key of a constructed script, in key order.
type ScriptRelationshipProof struct {
	version uint8
	proofs  []*PublicKeyRelationshipProof
}

// NewScriptRelationshipProof creates a proof from the given key proofs. The
// slice is copied, the proofs themselves are immutable and shared.
func NewScriptRelationshipProof(proofs []*PublicKeyRelationshipProof,
	opts ...Option) (*ScriptRelationshipProof, error) {

	if len(proofs) > cscript.MaxKeys {
		return nil, fmt.Errorf("%w: %d key proofs exceed maximum of %d",
			record.ErrBadInput, len(proofs), cscript.MaxKeys)
	}
	for i, proof := range proofs {
		if proof == nil {
			return nil, fmt.Errorf("%w: key proof %d is nil",
				record.ErrBadInput, i)
		}
	}

	o := applyOptions(SRPVersion, opts)

	var keyProofs []*PublicKeyRelationshipProof
	if len(proofs) > 0 {
		keyProofs = fn.CopySlice(proofs)
	}

	return &ScriptRelationshipProof{
		version: o.version,
		proofs:  keyProofs,
	}, nil
}

// Version returns the record version.
func (s *ScriptRelationshipProof) Version() uint8 {
	return s.version
}

// Proofs returns the key proofs in key order.
func (s *ScriptRelationshipProof) Proofs() []*PublicKeyRelationshipProof {
	return fn.CopySlice(s.proofs)
}

// NumProofs returns the number of key proofs.
func (s *ScriptRelationshipProof) NumProofs() int {
	return len(s.proofs)
}

// Copy returns a deep copy of the proof.
func (s *ScriptRelationshipProof) Copy() *ScriptRelationshipProof {
	return &ScriptRelationshipProof{
		version: s.version,
		proofs:  fn.CopyAll(s.proofs),
	}
}

// Encode writes the version, the proof count and all key proofs.
func (s *ScriptRelationshipProof) Encode(w io.Writer) error {
	if err := record.WriteUint8(w, s.version); err != nil {
		return err
	}
	if err := record.WriteVarInt(w, uint64(len(s.proofs))); err != nil {
		return err
	}
	for _, proof := range s.proofs {
		if err := proof.Encode(w); err != nil {
			return err
		}
	}

	return nil
}

// Bytes returns the serialized proof.
func (s *ScriptRelationshipProof) Bytes() ([]byte, error) {
	return fn.Encode(s)
}

// DecodeScriptRelationshipProof reads a proof written by Encode.
func DecodeScriptRelationshipProof(r io.Reader,
	opts ...record.DecodeOption) (*ScriptRelationshipProof, error) {

	o := record.ApplyDecodeOptions(opts...)

	version, err := record.ReadUint8(r, "version")
	if err != nil {
		return nil, err
	}
	err = record.CheckVersion(
		o.VersionPolicy, "script relationship proof", version,
		SRPVersion,
	)
	if err != nil {
		return nil, err
	}

	count, err := record.ReadCount(r, cscript.MaxKeys, "key proof")
	if err != nil {
		return nil, err
	}

	var proofs []*PublicKeyRelationshipProof
	for i := uint64(0); i < count; i++ {
		proof, err := DecodePublicKeyRelationshipProof(r, opts...)
		if err != nil {
			return nil, fmt.Errorf("key proof %d: %w", i, err)
		}

		proofs = append(proofs, proof)
	}

	return &ScriptRelationshipProof{
		version: version,
		proofs:  proofs,
	}, nil
}

// parseWith decodes a record from b and rejects trailing bytes.
func parseWith[T any](b []byte, name string,
	decode func(io.Reader) (T, error)) (T, error) {

	var zero T

	r := bytes.NewReader(b)
	val, err := decode(r)
	if err != nil {
		return zero, err
	}
	if r.Len() != 0 {
		return zero, fmt.Errorf("%w: %d trailing bytes after %s",
			record.ErrFormat, r.Len(), name)
	}

	return val, nil
}

// ParsePublicKeyRelationshipProof decodes a serialized proof.
func ParsePublicKeyRelationshipProof(b []byte,
	opts ...record.DecodeOption) (*PublicKeyRelationshipProof, error) {

	return parseWith(
		b, "key proof",
		func(r io.Reader) (*PublicKeyRelationshipProof, error) {
			return DecodePublicKeyRelationshipProof(r, opts...)
		},
	)
}

// ParseScriptRelationshipProof decodes a serialized proof.
func ParseScriptRelationshipProof(b []byte,
	opts ...record.DecodeOption) (*ScriptRelationshipProof, error) {

	return parseWith(
		b, "script proof",
		func(r io.Reader) (*ScriptRelationshipProof, error) {
			return DecodeScriptRelationshipProof(r, opts...)
		},
	)
}
