package keysource

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/record"
	lfn "github.com/lightningnetwork/lnd/fn/v2"
)

// V0 is the only version of the public key source record we know of.
const V0 uint8 = 0

// The flag bits of a public key source record.
const (
	FlagStatic uint = iota
	FlagCompressed
	FlagHash160
	FlagStealth
	FlagUserKey
	FlagExternal
	FlagChecksum
)

// Source is where the public key comes from: either the binary key material
// itself (left) or a textual reference to another key source, such as an
// email-like identifier (right).
type Source = lfn.Either[[]byte, string]

// BinarySource wraps binary key material. The bytes are copied.
func BinarySource(raw []byte) Source {
	return lfn.NewLeft[[]byte, string](bytes.Clone(raw))
}

// ExternalSource wraps a textual reference to another key source.
func ExternalSource(ref string) Source {
	return lfn.NewRight[[]byte, string](ref)
}

// PublicKeySource describes where a public key placed into a script comes
// from and how it must be serialized there. It is never modified after
// construction.
type PublicKeySource struct {
	version         uint8
	isStatic        bool
	useCompressed   bool
	useHash160      bool
	isStealth       bool
	isUserKey       bool
	checksumPresent bool
	source          Source
}

// Option is a functional option for New.
type Option func(*PublicKeySource)

// WithStatic marks the raw source as a single public key that is used as is.
func WithStatic() Option {
	return func(p *PublicKeySource) {
		p.isStatic = true
	}
}

// WithCompressed makes the key appear in compressed form in scripts.
func WithCompressed() Option {
	return func(p *PublicKeySource) {
		p.useCompressed = true
	}
}

// WithHash160 makes the key appear as its hash160 in scripts.
func WithHash160() Option {
	return func(p *PublicKeySource) {
		p.useHash160 = true
	}
}

// WithStealth marks the raw source as a stealth address.
func WithStealth() Option {
	return func(p *PublicKeySource) {
		p.isStealth = true
	}
}

// WithUserKey marks the slot as one the user fills with their own key.
func WithUserKey() Option {
	return func(p *PublicKeySource) {
		p.isUserKey = true
	}
}

// WithoutChecksum omits the trailing checksum from the serialized record.
func WithoutChecksum() Option {
	return func(p *PublicKeySource) {
		p.checksumPresent = false
	}
}

// WithVersion overrides the record version.
func WithVersion(version uint8) Option {
	return func(p *PublicKeySource) {
		p.version = version
	}
}

// New creates a new public key source. Binary sources must not be empty,
// external sources must be non-empty valid UTF-8.
func New(src Source, opts ...Option) (*PublicKeySource, error) {
	p := &PublicKeySource{
		version:         V0,
		checksumPresent: true,
	}
	for _, opt := range opts {
		opt(p)
	}

	if !src.IsLeft() && !src.IsRight() {
		return nil, fmt.Errorf("%w: empty key source", record.ErrBadInput)
	}

	var err error
	src.WhenLeft(func(raw []byte) {
		if len(raw) == 0 {
			err = fmt.Errorf("%w: empty binary key source",
				record.ErrBadInput)
		}
		p.source = BinarySource(raw)
	})
	src.WhenRight(func(ref string) {
		if len(ref) == 0 || !utf8.ValidString(ref) {
			err = fmt.Errorf("%w: external source must be "+
				"non-empty UTF-8 text", record.ErrEncoding)
		}
		p.source = src
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// NewFromFlags creates a public key source from its decoded record fields.
// The external flag decides how the raw bytes are interpreted.
func NewFromFlags(version uint8, flags record.Flags,
	raw []byte) (*PublicKeySource, error) {

	opts := []Option{WithVersion(version)}
	addIf := func(bit uint, opt Option) {
		if flags.Get(bit) {
			opts = append(opts, opt)
		}
	}
	addIf(FlagStatic, WithStatic())
	addIf(FlagCompressed, WithCompressed())
	addIf(FlagHash160, WithHash160())
	addIf(FlagStealth, WithStealth())
	addIf(FlagUserKey, WithUserKey())
	if !flags.Get(FlagChecksum) {
		opts = append(opts, WithoutChecksum())
	}

	if flags.Get(FlagExternal) {
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%w: external flag set on "+
				"binary source", record.ErrEncoding)
		}

		return New(ExternalSource(string(raw)), opts...)
	}

	return New(BinarySource(raw), opts...)
}

// Version returns the record version.
func (p *PublicKeySource) Version() uint8 {
	return p.version
}

// IsStatic returns true if the raw source is used as is.
func (p *PublicKeySource) IsStatic() bool {
	return p.isStatic
}

// UseCompressed returns true if the key appears compressed in scripts.
func (p *PublicKeySource) UseCompressed() bool {
	return p.useCompressed
}

// UseHash160 returns true if the key appears as its hash160 in scripts.
func (p *PublicKeySource) UseHash160() bool {
	return p.useHash160
}

// IsStealth returns true if the raw source is a stealth address.
func (p *PublicKeySource) IsStealth() bool {
	return p.isStealth
}

// IsUserKey returns true if the user fills the slot with their own key.
func (p *PublicKeySource) IsUserKey() bool {
	return p.isUserKey
}

// IsExternalSource returns true if the raw source refers to another key
// source.
func (p *PublicKeySource) IsExternalSource() bool {
	return p.source.IsRight()
}

// ChecksumPresent returns true if the serialized record carries a checksum.
func (p *PublicKeySource) ChecksumPresent() bool {
	return p.checksumPresent
}

// Source returns the tagged key source.
func (p *PublicKeySource) Source() Source {
	var src Source
	p.source.WhenLeft(func(raw []byte) {
		src = BinarySource(raw)
	})
	p.source.WhenRight(func(ref string) {
		src = ExternalSource(ref)
	})

	return src
}

// External returns the textual reference of an external source.
func (p *PublicKeySource) External() (string, bool) {
	var (
		ref string
		ok  bool
	)
	p.source.WhenRight(func(r string) {
		ref, ok = r, true
	})

	return ref, ok
}

// RawSource returns a copy of the raw source bytes as they are serialized.
func (p *PublicKeySource) RawSource() []byte {
	var raw []byte
	p.source.WhenLeft(func(b []byte) {
		raw = bytes.Clone(b)
	})
	p.source.WhenRight(func(ref string) {
		raw = []byte(ref)
	})

	return raw
}

// Fingerprint is the hash256 prefix of the raw source.
func (p *PublicKeySource) Fingerprint() keyproof.Fingerprint {
	return keyproof.Hash256Prefix(p.RawSource())
}

// Flags returns the flag field of the serialized record.
func (p *PublicKeySource) Flags() record.Flags {
	var flags record.Flags
	flags.Set(FlagStatic, p.isStatic)
	flags.Set(FlagCompressed, p.useCompressed)
	flags.Set(FlagHash160, p.useHash160)
	flags.Set(FlagStealth, p.isStealth)
	flags.Set(FlagUserKey, p.isUserKey)
	flags.Set(FlagExternal, p.IsExternalSource())
	flags.Set(FlagChecksum, p.checksumPresent)

	return flags
}

// PubKey parses the binary raw source as a public key.
func (p *PublicKeySource) PubKey() (*btcec.PublicKey, error) {
	if p.IsExternalSource() {
		return nil, fmt.Errorf("%w: external source holds no key",
			record.ErrBadInput)
	}

	return keyproof.ParsePubKey(p.RawSource())
}

// ScriptData returns the bytes that represent key in a script built from
// this source.
func (p *PublicKeySource) ScriptData(key *btcec.PublicKey) []byte {
	serialized := key.SerializeUncompressed()
	if p.useCompressed {
		serialized = key.SerializeCompressed()
	}

	if p.useHash160 {
		return btcutil.Hash160(serialized)
	}

	return serialized
}

// EncodeInner writes the inner record: version, flags and raw source.
func (p *PublicKeySource) EncodeInner(w io.Writer) error {
	if err := record.WriteUint8(w, p.version); err != nil {
		return err
	}
	if err := record.WriteFlags16(w, p.Flags()); err != nil {
		return err
	}

	return record.WriteVarBytes(w, p.RawSource())
}

// InnerBytes returns the serialized inner record.
func (p *PublicKeySource) InnerBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.EncodeInner(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Encode writes the full record using the default checksummer.
func (p *PublicKeySource) Encode(w io.Writer) error {
	return p.EncodeWith(w, record.DefaultChecksummer)
}

// EncodeWith writes the full record: the length-prefixed inner record and,
// if enabled, its checksum computed by cs.
func (p *PublicKeySource) EncodeWith(w io.Writer, cs record.Checksummer) error {
	inner, err := p.InnerBytes()
	if err != nil {
		return err
	}

	return record.WriteRecord(w, inner, p.checksumPresent, cs)
}

// Bytes returns the serialized full record.
func (p *PublicKeySource) Bytes() ([]byte, error) {
	return fn.Encode(p)
}

// checksumFlag is the checksum bit of the 16 bit flag field that follows the
// version byte.
var checksumFlag = record.ChecksumFlag{Offset: 1, Bit: FlagChecksum}

// Decode reads a full record written by Encode.
//
// NOTE: Decode can't tell where the record ends if the checksum flag itself
// was corrupted, so it won't catch a cleared flag. Use Parse if the complete
// record is at hand.
func Decode(r io.Reader, opts ...record.DecodeOption) (*PublicKeySource,
	error) {

	o := record.ApplyDecodeOptions(opts...)

	inner, err := record.ReadRecord(r, checksumFlag.IsSet, o.Checksummer)
	if err != nil {
		return nil, fmt.Errorf("unable to read key source: %w", err)
	}

	return DecodeInner(inner, opts...)
}

// DecodeInner parses an inner record. Trailing bytes are rejected.
func DecodeInner(inner []byte,
	opts ...record.DecodeOption) (*PublicKeySource, error) {

	o := record.ApplyDecodeOptions(opts...)
	r := bytes.NewReader(inner)

	version, err := record.ReadUint8(r, "version")
	if err != nil {
		return nil, err
	}
	err = record.CheckVersion(o.VersionPolicy, "key source", version, V0)
	if err != nil {
		return nil, err
	}

	flags, err := record.ReadFlags16(r)
	if err != nil {
		return nil, err
	}

	raw, err := record.ReadVarBytes(r, "raw source")
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after key source",
			record.ErrFormat, r.Len())
	}

	pks, err := NewFromFlags(version, flags, raw)
	if err != nil {
		return nil, err
	}

	log.Tracef("Decoded key source with fingerprint %x, flags %016b",
		pks.Fingerprint(), uint16(flags))

	return pks, nil
}

// Parse decodes a full record and makes sure no trailing bytes are left.
func Parse(b []byte, opts ...record.DecodeOption) (*PublicKeySource, error) {
	o := record.ApplyDecodeOptions(opts...)

	inner, err := record.ParseRecord(b, checksumFlag, o.Checksummer)
	if err != nil {
		return nil, fmt.Errorf("unable to read key source: %w", err)
	}

	return DecodeInner(inner, opts...)
}
