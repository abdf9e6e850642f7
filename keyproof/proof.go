package keyproof

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/record"
)

const (
	// FingerprintSize is the size of a key fingerprint.
	FingerprintSize = 4

	// MultiplierSize is the size of a single serialized multiplier.
	MultiplierSize = 32

	// MaxMultipliers is the maximum number of multipliers a proof may
	// carry. This is the maximum depth of a BIP32 path.
	MaxMultipliers = 255
)

const (
	// proofFlagNull is the flag bit that marks a proof without a
	// derivation path.
	proofFlagNull = 0
)

// Fingerprint is the first four bytes of the double SHA-256 of a key. It is
// used to cheaply detect mismatched keys, not as a security check.
type Fingerprint [FingerprintSize]byte

// Hash256Prefix returns the first four bytes of hash256(b).
func Hash256Prefix(b []byte) Fingerprint {
	var f Fingerprint
	copy(f[:], chainhash.DoubleHashB(b))
	return f
}

// KeyFingerprint returns the fingerprint of the compressed serialization of
// the given key.
func KeyFingerprint(pubKey *btcec.PublicKey) Fingerprint {
	return Hash256Prefix(pubKey.SerializeCompressed())
}

// Multiplier is a 32-byte big-endian scalar that is multiplied into a public
// key in a single derivation step.
type Multiplier [MultiplierSize]byte

// MultiplierProof is the list of multipliers that turns a root public key
// into a derived public key, together with the fingerprints of both keys.
// A null proof is used for keys that have no derivation path, such as static
// or stealth keys. A MultiplierProof is never modified after construction.
type MultiplierProof struct {
	isNull         bool
	srcFingerprint Fingerprint
	dstFingerprint Fingerprint
	multipliers    []Multiplier
}

// NewNullMultiplierProof returns a proof that carries no derivation path.
func NewNullMultiplierProof() *MultiplierProof {
	return &MultiplierProof{
		isNull: true,
	}
}

// NewMultiplierProof creates a proof from the fingerprints of the source and
// destination keys and the multipliers to apply in order. The multiplier
// slice is copied.
func NewMultiplierProof(src, dst Fingerprint,
	multipliers []Multiplier) *MultiplierProof {

	var mults []Multiplier
	if len(multipliers) > 0 {
		mults = fn.CopySlice(multipliers)
	}

	return &MultiplierProof{
		srcFingerprint: src,
		dstFingerprint: dst,
		multipliers:    mults,
	}
}

// Copy returns a deep copy of the proof.
func (m *MultiplierProof) Copy() *MultiplierProof {
	return &MultiplierProof{
		isNull:         m.isNull,
		srcFingerprint: m.srcFingerprint,
		dstFingerprint: m.dstFingerprint,
		multipliers:    fn.CopySlice(m.multipliers),
	}
}

// IsNull returns true if the proof carries no derivation path.
func (m *MultiplierProof) IsNull() bool {
	return m.isNull
}

// SrcFingerprint is the fingerprint of the key the proof is applied to.
func (m *MultiplierProof) SrcFingerprint() Fingerprint {
	return m.srcFingerprint
}

// DstFingerprint is the fingerprint of the key the proof results in.
func (m *MultiplierProof) DstFingerprint() Fingerprint {
	return m.dstFingerprint
}

// Multipliers returns a copy of the multipliers of the proof.
func (m *MultiplierProof) Multipliers() []Multiplier {
	return fn.CopySlice(m.multipliers)
}

// NumMultipliers returns the number of derivation steps of the proof.
func (m *MultiplierProof) NumMultipliers() int {
	return len(m.multipliers)
}

// Encode serializes the proof: a single flag byte, then, for non-null
// proofs, both fingerprints, the multiplier count and the multipliers.
func (m *MultiplierProof) Encode(w io.Writer) error {
	var flags record.Flags
	flags.Set(proofFlagNull, m.isNull)
	if err := record.WriteFlags8(w, flags); err != nil {
		return err
	}

	if m.isNull {
		return nil
	}

	if _, err := w.Write(m.srcFingerprint[:]); err != nil {
		return err
	}
	if _, err := w.Write(m.dstFingerprint[:]); err != nil {
		return err
	}

	err := record.WriteVarInt(w, uint64(len(m.multipliers)))
	if err != nil {
		return err
	}
	for _, mult := range m.multipliers {
		if _, err := w.Write(mult[:]); err != nil {
			return err
		}
	}

	return nil
}

// Bytes returns the serialized proof.
func (m *MultiplierProof) Bytes() ([]byte, error) {
	return fn.Encode(m)
}

// DecodeMultiplierProof parses a proof serialized with Encode.
func DecodeMultiplierProof(r io.Reader) (*MultiplierProof, error) {
	flags, err := record.ReadFlags8(r)
	if err != nil {
		return nil, err
	}

	if flags.Get(proofFlagNull) {
		return NewNullMultiplierProof(), nil
	}

	var src, dst Fingerprint
	if err := record.ReadFixed(r, src[:], "src fingerprint"); err != nil {
		return nil, err
	}
	if err := record.ReadFixed(r, dst[:], "dst fingerprint"); err != nil {
		return nil, err
	}

	numMults, err := record.ReadCount(r, MaxMultipliers, "multiplier")
	if err != nil {
		return nil, err
	}

	mults := make([]Multiplier, numMults)
	for i := range mults {
		err := record.ReadFixed(r, mults[i][:], "multiplier")
		if err != nil {
			return nil, fmt.Errorf("proof declares %d multipliers, "+
				"only %d present: %w", numMults, i, err)
		}
	}

	return NewMultiplierProof(src, dst, mults), nil
}

// ParseMultiplierProof parses a serialized proof and makes sure no trailing
// bytes are left.
func ParseMultiplierProof(b []byte) (*MultiplierProof, error) {
	r := bytes.NewReader(b)
	proof, err := DecodeMultiplierProof(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after proof",
			record.ErrFormat, r.Len())
	}

	return proof, nil
}
