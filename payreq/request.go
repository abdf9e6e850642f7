package payreq

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/lightninglabs/btcid/cscript"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/record"
)

const (
	// PRVersion is the version of payment requests.
	PRVersion uint8 = 0

	// MaxEntries is the maximum number of recipients of a payment request.
	MaxEntries = 255
)

// ErrInvalidBech32m is returned when a string can't be decoded as a bech32m
// encoded payment request.
var ErrInvalidBech32m = errors.New("payreq: invalid bech32m string")

// Entry is a single recipient of a payment request: the script to pay to, the
// name of the recipient and the proof that links the keys of the script to
// their roots.
type Entry struct {
	Script *cscript.ConstructedScript
	Name   string
	Proof  *ScriptRelationshipProof
}

// PaymentRequest is a list of recipients. The scripts, names and proofs of the
// recipients are serialized as three index aligned sequences.
type PaymentRequest struct {
	version uint8
	flags   record.Flags
	entries []Entry

	// scripts holds the serialized scripts of the entries.
	scripts [][]byte

	// reqSize is the serialized size of the script section.
	reqSize uint64
}

// NewPaymentRequest creates a payment request for the given recipients. Every
// proof must carry one key proof per key of its script.
func NewPaymentRequest(entries []Entry,
	opts ...Option) (*PaymentRequest, error) {

	for i, entry := range entries {
		if entry.Script == nil || entry.Proof == nil {
			return nil, fmt.Errorf("%w: entry %d is missing its "+
				"script or proof", record.ErrBadInput, i)
		}

		if entry.Proof.NumProofs() != entry.Script.NumKeys() {
			return nil, fmt.Errorf("%w: entry %d has %d key proofs "+
				"for %d keys", record.ErrBadInput, i,
				entry.Proof.NumProofs(), entry.Script.NumKeys())
		}
	}

	o := applyOptions(PRVersion, opts)

	return newPaymentRequest(o.version, 0, entries)
}

// newPaymentRequest checks the bounds shared by constructed and decoded
// requests and serializes the scripts.
func newPaymentRequest(version uint8, flags record.Flags,
	entries []Entry) (*PaymentRequest, error) {

	if len(entries) > MaxEntries {
		return nil, fmt.Errorf("%w: %d entries exceed maximum of %d",
			record.ErrBadInput, len(entries), MaxEntries)
	}

	req := &PaymentRequest{
		version: version,
		flags:   flags,
		entries: fn.CopySlice(entries),
		scripts: make([][]byte, len(entries)),
	}
	for i, entry := range entries {
		if !utf8.ValidString(entry.Name) {
			return nil, fmt.Errorf("%w: name of entry %d is not "+
				"valid UTF-8", record.ErrEncoding, i)
		}

		script, err := entry.Script.Bytes()
		if err != nil {
			return nil, fmt.Errorf("unable to encode script %d: %w",
				i, err)
		}

		req.scripts[i] = script
		req.reqSize += record.VarBytesSize(len(script))
	}

	return req, nil
}

// Version returns the record version.
func (p *PaymentRequest) Version() uint8 {
	return p.version
}

// Flags returns the reserved flag field.
func (p *PaymentRequest) Flags() record.Flags {
	return p.flags
}

// ReqSize returns the serialized size of the script section.
func (p *PaymentRequest) ReqSize() uint64 {
	return p.reqSize
}

// NumEntries returns the number of recipients.
func (p *PaymentRequest) NumEntries() int {
	return len(p.entries)
}

// Entries returns the recipients of the request.
func (p *PaymentRequest) Entries() []Entry {
	return fn.CopySlice(p.entries)
}

// Encode writes the request header followed by the script, name and proof
// sequences.
func (p *PaymentRequest) Encode(w io.Writer) error {
	if err := record.WriteUint8(w, p.version); err != nil {
		return err
	}
	if err := record.WriteFlags16(w, p.flags); err != nil {
		return err
	}
	if err := record.WriteVarInt(w, uint64(len(p.entries))); err != nil {
		return err
	}
	if err := record.WriteVarInt(w, p.reqSize); err != nil {
		return err
	}

	for _, script := range p.scripts {
		if err := record.WriteVarBytes(w, script); err != nil {
			return err
		}
	}
	for _, entry := range p.entries {
		err := record.WriteVarBytes(w, []byte(entry.Name))
		if err != nil {
			return err
		}
	}
	for _, entry := range p.entries {
		if err := entry.Proof.Encode(w); err != nil {
			return err
		}
	}

	return nil
}

// Bytes returns the serialized request.
func (p *PaymentRequest) Bytes() ([]byte, error) {
	return fn.Encode(p)
}

// DecodePaymentRequest reads a request written by Encode. Every script is
// decoded and validated, the key proofs are only checked by
// VerifyPaymentRequest.
func DecodePaymentRequest(r io.Reader,
	opts ...record.DecodeOption) (*PaymentRequest, error) {

	o := record.ApplyDecodeOptions(opts...)

	version, err := record.ReadUint8(r, "version")
	if err != nil {
		return nil, err
	}
	err = record.CheckVersion(
		o.VersionPolicy, "payment request", version, PRVersion,
	)
	if err != nil {
		return nil, err
	}

	flags, err := record.ReadFlags16(r)
	if err != nil {
		return nil, err
	}

	count, err := record.ReadCount(r, MaxEntries, "entry")
	if err != nil {
		return nil, err
	}

	reqSize, err := record.ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, count)

	var scriptSize uint64
	for i := range entries {
		b, err := record.ReadVarBytes(r, "script")
		if err != nil {
			return nil, fmt.Errorf("request declares %d scripts, "+
				"only %d present: %w", count, i, err)
		}
		scriptSize += record.VarBytesSize(len(b))

		entries[i].Script, err = cscript.Parse(b, opts...)
		if err != nil {
			return nil, fmt.Errorf("script %d: %w", i, err)
		}
	}
	if scriptSize != reqSize {
		return nil, fmt.Errorf("%w: script section has %d bytes, "+
			"request size is %d", record.ErrFormat, scriptSize,
			reqSize)
	}

	for i := range entries {
		b, err := record.ReadVarBytes(r, "name")
		if err != nil {
			return nil, fmt.Errorf("request declares %d names, "+
				"only %d present: %w", count, i, err)
		}
		entries[i].Name = string(b)
	}

	for i := range entries {
		entries[i].Proof, err = DecodeScriptRelationshipProof(
			r, opts...,
		)
		if err != nil {
			return nil, fmt.Errorf("script proof %d: %w", i, err)
		}
	}

	req, err := newPaymentRequest(version, flags, entries)
	if err != nil {
		return nil, err
	}

	log.Debugf("Decoded payment request with %d entries", count)

	return req, nil
}

// ParsePaymentRequest decodes a serialized request and rejects trailing
// bytes.
func ParsePaymentRequest(b []byte,
	opts ...record.DecodeOption) (*PaymentRequest, error) {

	return parseWith(
		b, "payment request",
		func(r io.Reader) (*PaymentRequest, error) {
			return DecodePaymentRequest(r, opts...)
		},
	)
}

// EncodeString returns the bech32m encoding of the request, using the HRP of
// the given network.
func (p *PaymentRequest) EncodeString(params *ChainParams) (string, error) {
	if params == nil || !IsBech32MPrefix(params.HRP+"1") {
		return "", ErrUnsupportedHRP
	}

	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return "", err
	}

	// Group the request bytes into 5 bit words as required by bech32m.
	converted, err := bech32.ConvertBits(buf.Bytes(), 8, 5, true)
	if err != nil {
		return "", err
	}

	return bech32.EncodeM(params.HRP, converted)
}

// DecodeString decodes a bech32m encoded request and returns it together with
// the network its HRP belongs to.
func DecodeString(s string, opts ...record.DecodeOption) (*PaymentRequest,
	*ChainParams, error) {

	// The HRP is everything before the last '1'.
	oneIndex := strings.LastIndexByte(s, '1')
	if oneIndex <= 1 {
		return nil, nil, ErrInvalidBech32m
	}

	prefix := s[:oneIndex+1]
	if !IsBech32MPrefix(prefix) {
		return nil, nil, ErrUnsupportedHRP
	}

	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidBech32m, err)
	}

	params, err := Net(hrp)
	if err != nil {
		return nil, nil, err
	}

	// Regroup the 5 bit words into the original request bytes.
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidBech32m, err)
	}

	req, err := ParsePaymentRequest(converted, opts...)
	if err != nil {
		return nil, nil, err
	}

	return req, params, nil
}
