package cscript

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/keysource"
	"github.com/lightninglabs/btcid/record"
)

// V0 is the only version of the constructed script record we know of.
const V0 uint8 = 0

// MaxKeys is the maximum number of key sources a script can reference, as
// the key count is serialized as a single byte.
const MaxKeys = 255

// The flag bits of a constructed script record.
const (
	FlagP2SH uint = iota
	FlagChecksum
)

// Range is the half open index range [Start, End) of a bundle within the key
// list of a script.
type Range struct {
	Start int
	End   int
}

// Len returns the number of keys in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// ConstructedScript is a script template together with the key sources whose
// keys are inserted at the slots of the template. The keys of one slot form a
// bundle. A ConstructedScript is never modified after construction.
type ConstructedScript struct {
	version         uint8
	template        []byte
	useP2SH         bool
	checksumPresent bool

	// keys is the flat key list, bundles are index ranges into it.
	keys    []*keysource.PublicKeySource
	slots   []Slot
	bundles []Range
}

type options struct {
	version         uint8
	checksumPresent bool
	engine          keyproof.Engine
}

func defaultOptions() *options {
	return &options{
		version:         V0,
		checksumPresent: true,
		engine:          keyproof.NewSecp256k1Engine(),
	}
}

// Option is a functional option for New and the standard script factories.
type Option func(*options)

// WithoutChecksum omits the trailing checksum from the serialized record.
func WithoutChecksum() Option {
	return func(o *options) {
		o.checksumPresent = false
	}
}

// WithVersion overrides the record version.
func WithVersion(version uint8) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithEngine sets the engine used to validate multisig keys.
func WithEngine(engine keyproof.Engine) Option {
	return func(o *options) {
		o.engine = engine
	}
}

// New creates a constructed script. The sum of the slot sizes of the template
// must equal the number of keys, which are assigned to the slots in order.
func New(template []byte, keys []*keysource.PublicKeySource, useP2SH bool,
	opts ...Option) (*ConstructedScript, error) {

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if len(keys) > MaxKeys {
		return nil, fmt.Errorf("%w: %d keys exceed maximum of %d",
			record.ErrBadInput, len(keys), MaxKeys)
	}
	for i, key := range keys {
		if key == nil {
			return nil, fmt.Errorf("%w: key source %d is nil",
				record.ErrBadInput, i)
		}
	}

	slots, err := ParseTemplate(template)
	if err != nil {
		return nil, err
	}

	var (
		bundles []Range
		idx     int
	)
	for _, slot := range slots {
		if slot.IsLiteral() {
			continue
		}

		bundles = append(bundles, Range{
			Start: idx,
			End:   idx + int(slot.Size),
		})
		idx += int(slot.Size)
	}
	if idx != len(keys) {
		return nil, fmt.Errorf("%w: template has slots for %d keys, "+
			"got %d", record.ErrTemplate, idx, len(keys))
	}

	return &ConstructedScript{
		version:         o.version,
		template:        bytes.Clone(template),
		useP2SH:         useP2SH,
		checksumPresent: o.checksumPresent,
		keys:            fn.CopySlice(keys),
		slots:           slots,
		bundles:         bundles,
	}, nil
}

// Version returns the record version.
func (c *ConstructedScript) Version() uint8 {
	return c.version
}

// Template returns a copy of the escaped script template.
func (c *ConstructedScript) Template() []byte {
	return bytes.Clone(c.template)
}

// UseP2SH returns true if the script is wrapped in a P2SH output.
func (c *ConstructedScript) UseP2SH() bool {
	return c.useP2SH
}

// ChecksumPresent returns true if the serialized record carries a checksum.
func (c *ConstructedScript) ChecksumPresent() bool {
	return c.checksumPresent
}

// NumKeys returns the number of key sources referenced by the script.
func (c *ConstructedScript) NumKeys() int {
	return len(c.keys)
}

// PubKeySources returns the flat list of key sources in slot order.
func (c *ConstructedScript) PubKeySources() []*keysource.PublicKeySource {
	return fn.CopySlice(c.keys)
}

// Slots returns the slots of the template in template order.
func (c *ConstructedScript) Slots() []Slot {
	return fn.CopySlice(c.slots)
}

// BundleRanges returns the index range of every bundle within the key list.
func (c *ConstructedScript) BundleRanges() []Range {
	return fn.CopySlice(c.bundles)
}

// Bundles partitions the key list into the bundles of the template. All
// bundles are windows into one copy of the key list and refer to the same
// key source records as PubKeySources.
func (c *ConstructedScript) Bundles() [][]*keysource.PublicKeySource {
	keys := c.PubKeySources()

	bundles := make([][]*keysource.PublicKeySource, len(c.bundles))
	for i, r := range c.bundles {
		bundles[i] = keys[r.Start:r.End:r.End]
	}

	return bundles
}

// Disasm renders the template in a human readable form.
func (c *ConstructedScript) Disasm() string {
	disasm, err := DisasmTemplate(c.template)
	if err != nil {
		return fmt.Sprintf("[error: %v]", err)
	}

	return disasm
}

// Flags returns the flag field of the serialized record.
func (c *ConstructedScript) Flags() record.Flags {
	var flags record.Flags
	flags.Set(FlagP2SH, c.useP2SH)
	flags.Set(FlagChecksum, c.checksumPresent)

	return flags
}

// EncodeInner writes the inner record: version, flags, template and the
// inner records of all key sources.
func (c *ConstructedScript) EncodeInner(w io.Writer) error {
	if err := record.WriteUint8(w, c.version); err != nil {
		return err
	}
	if err := record.WriteFlags8(w, c.Flags()); err != nil {
		return err
	}
	if err := record.WriteVarBytes(w, c.template); err != nil {
		return err
	}
	if err := record.WriteUint8(w, uint8(len(c.keys))); err != nil {
		return err
	}

	for _, key := range c.keys {
		inner, err := key.InnerBytes()
		if err != nil {
			return err
		}
		if err := record.WriteVarBytes(w, inner); err != nil {
			return err
		}
	}

	return nil
}

// InnerBytes returns the serialized inner record.
func (c *ConstructedScript) InnerBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.EncodeInner(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Encode writes the full record using the default checksummer.
func (c *ConstructedScript) Encode(w io.Writer) error {
	return c.EncodeWith(w, record.DefaultChecksummer)
}

// EncodeWith writes the full record: the length-prefixed inner record and,
// if enabled, its checksum computed by cs.
func (c *ConstructedScript) EncodeWith(w io.Writer,
	cs record.Checksummer) error {

	inner, err := c.InnerBytes()
	if err != nil {
		return err
	}

	return record.WriteRecord(w, inner, c.checksumPresent, cs)
}

// Bytes returns the serialized full record.
func (c *ConstructedScript) Bytes() ([]byte, error) {
	return fn.Encode(c)
}

// checksumFlag is the checksum bit of the flag byte that follows the version
// byte.
var checksumFlag = record.ChecksumFlag{Offset: 1, Bit: FlagChecksum}

// Decode reads a full record written by Encode. The template is validated
// against the decoded keys the same way New does.
//
// NOTE: A cleared checksum flag is only detected by Parse, which knows where
// the record ends.
func Decode(r io.Reader, opts ...record.DecodeOption) (*ConstructedScript,
	error) {

	o := record.ApplyDecodeOptions(opts...)

	inner, err := record.ReadRecord(r, checksumFlag.IsSet, o.Checksummer)
	if err != nil {
		return nil, fmt.Errorf("unable to read constructed script: %w",
			err)
	}

	return DecodeInner(inner, opts...)
}

// DecodeInner parses an inner record. Trailing bytes are rejected.
func DecodeInner(inner []byte,
	opts ...record.DecodeOption) (*ConstructedScript, error) {

	o := record.ApplyDecodeOptions(opts...)
	r := bytes.NewReader(inner)

	version, err := record.ReadUint8(r, "version")
	if err != nil {
		return nil, err
	}
	err = record.CheckVersion(o.VersionPolicy, "script", version, V0)
	if err != nil {
		return nil, err
	}

	flags, err := record.ReadFlags8(r)
	if err != nil {
		return nil, err
	}

	template, err := record.ReadVarBytes(r, "template")
	if err != nil {
		return nil, err
	}

	numKeys, err := record.ReadUint8(r, "key count")
	if err != nil {
		return nil, err
	}

	keys := make([]*keysource.PublicKeySource, numKeys)
	for i := range keys {
		keyInner, err := record.ReadVarBytes(r, "key source")
		if err != nil {
			return nil, fmt.Errorf("script declares %d keys, "+
				"only %d present: %w", numKeys, i, err)
		}

		keys[i], err = keysource.DecodeInner(keyInner, opts...)
		if err != nil {
			return nil, fmt.Errorf("key source %d: %w", i, err)
		}
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after script",
			record.ErrFormat, r.Len())
	}

	newOpts := []Option{WithVersion(version)}
	if !flags.Get(FlagChecksum) {
		newOpts = append(newOpts, WithoutChecksum())
	}

	script, err := New(template, keys, flags.Get(FlagP2SH), newOpts...)
	if err != nil {
		return nil, err
	}

	log.Tracef("Decoded script %v with %d keys", script.Disasm(),
		len(keys))

	return script, nil
}

// Parse decodes a full record and makes sure no trailing bytes are left.
func Parse(b []byte, opts ...record.DecodeOption) (*ConstructedScript,
	error) {

	o := record.ApplyDecodeOptions(opts...)

	inner, err := record.ParseRecord(b, checksumFlag, o.Checksummer)
	if err != nil {
		return nil, fmt.Errorf("unable to read constructed script: %w",
			err)
	}

	return DecodeInner(inner, opts...)
}
