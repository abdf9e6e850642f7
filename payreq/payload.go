package payreq

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/lightninglabs/btcid/cscript"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keysource"
	"github.com/lightninglabs/btcid/record"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/tlv"
)

// PayloadVersion is the version of signable ID payloads.
const PayloadVersion uint8 = 0

// PayloadTlvType is the type of the records of a signable ID payload.
type PayloadTlvType = tlv.Type

const (
	PayloadVersionType    PayloadTlvType = 0
	PayloadCreateDateType PayloadTlvType = 2
	PayloadExpireDateType PayloadTlvType = 4
	PayloadTypeType       PayloadTlvType = 6
	PayloadDataType       PayloadTlvType = 8
)

// knownPayloadTypes is the set of record types a payload is made of.
var knownPayloadTypes = map[tlv.Type]struct{}{
	PayloadVersionType:    {},
	PayloadCreateDateType: {},
	PayloadExpireDateType: {},
	PayloadTypeType:       {},
	PayloadDataType:       {},
}

// PayloadType is the kind of record wrapped by a signable ID payload.
type PayloadType uint8

const (
	// PayloadKeySource marks a serialized PublicKeySource.
	PayloadKeySource PayloadType = 0

	// PayloadConstructedScript marks a serialized ConstructedScript.
	PayloadConstructedScript PayloadType = 1
)

// String returns a human readable name of the payload type.
func (p PayloadType) String() string {
	switch p {
	case PayloadKeySource:
		return "KeySource"
	case PayloadConstructedScript:
		return "ConstructedScript"
	default:
		return fmt.Sprintf("<unknown(%d)>", uint8(p))
	}
}

// ErrUnknownType is returned when an unknown even type is encountered while
// decoding a payload.
type ErrUnknownType struct {
	// UnknownType is the type that was unknown.
	UnknownType tlv.Type

	// ValueBytes is the raw bytes of the value that was unknown.
	ValueBytes []byte
}

// Error returns the error message for the ErrUnknownType.
func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown even type %d", e.UnknownType)
}

// SignableIDPayload is the envelope a key source or constructed script is
// wrapped in to be signed and handed to a payer. It is valid between its
// create and expire dates.
type SignableIDPayload struct {
	Version     uint8
	CreateDate  time.Time
	ExpireDate  time.Time
	PayloadType PayloadType
	Payload     []byte

	// UnknownOddTypes holds the odd records we didn't know about when
	// decoding. They are written back when encoding the payload.
	UnknownOddTypes tlv.TypeMap
}

// NewKeySourcePayload wraps a key source in a payload valid for lifetime.
func NewKeySourcePayload(clk clock.Clock, lifetime time.Duration,
	pks *keysource.PublicKeySource) (*SignableIDPayload, error) {

	if pks == nil {
		return nil, fmt.Errorf("%w: missing key source",
			record.ErrBadInput)
	}

	return NewSignableIDPayload(clk, lifetime, PayloadKeySource, pks)
}

// NewScriptPayload wraps a constructed script in a payload valid for
// lifetime.
func NewScriptPayload(clk clock.Clock, lifetime time.Duration,
	script *cscript.ConstructedScript) (*SignableIDPayload, error) {

	if script == nil {
		return nil, fmt.Errorf("%w: missing script", record.ErrBadInput)
	}

	return NewSignableIDPayload(
		clk, lifetime, PayloadConstructedScript, script,
	)
}

// NewSignableIDPayload creates a payload of the given type that is created
// now and expires after lifetime. Dates have a resolution of one second.
func NewSignableIDPayload(clk clock.Clock, lifetime time.Duration,
	payloadType PayloadType, payload fn.Encoder) (*SignableIDPayload,
	error) {

	if lifetime < time.Second {
		return nil, fmt.Errorf("%w: lifetime %v is too short",
			record.ErrBadInput, lifetime)
	}

	payloadBytes, err := fn.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("unable to encode payload: %w", err)
	}

	now := time.Unix(clk.Now().Unix(), 0).UTC()

	return &SignableIDPayload{
		Version:     PayloadVersion,
		CreateDate:  now,
		ExpireDate:  now.Add(lifetime.Truncate(time.Second)),
		PayloadType: payloadType,
		Payload:     payloadBytes,
	}, nil
}

// IsExpired returns true if the payload is past its expire date.
func (p *SignableIDPayload) IsExpired(clk clock.Clock) bool {
	return !clk.Now().Before(p.ExpireDate)
}

// KeySource decodes the wrapped key source.
func (p *SignableIDPayload) KeySource(
	opts ...record.DecodeOption) (*keysource.PublicKeySource, error) {

	if p.PayloadType != PayloadKeySource {
		return nil, fmt.Errorf("%w: payload is a %v", record.ErrBadInput,
			p.PayloadType)
	}

	return keysource.Parse(p.Payload, opts...)
}

// ConstructedScript decodes the wrapped script.
func (p *SignableIDPayload) ConstructedScript(
	opts ...record.DecodeOption) (*cscript.ConstructedScript, error) {

	if p.PayloadType != PayloadConstructedScript {
		return nil, fmt.Errorf("%w: payload is a %v", record.ErrBadInput,
			p.PayloadType)
	}

	return cscript.Parse(p.Payload, opts...)
}

// Copy returns a deep copy of the payload.
func (p *SignableIDPayload) Copy() *SignableIDPayload {
	payload := *p
	payload.Payload = fn.CopySlice(p.Payload)

	if p.UnknownOddTypes != nil {
		payload.UnknownOddTypes = make(tlv.TypeMap, len(p.UnknownOddTypes))
		for typ, val := range p.UnknownOddTypes {
			payload.UnknownOddTypes[typ] = fn.CopySlice(val)
		}
	}

	return &payload
}

// knownRecords returns the records of the known types of the payload.
func (p *SignableIDPayload) knownRecords() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(PayloadVersionType, &p.Version),
		newTimeRecord(PayloadCreateDateType, &p.CreateDate),
		newTimeRecord(PayloadExpireDateType, &p.ExpireDate),
		newPayloadTypeRecord(&p.PayloadType),
		tlv.MakePrimitiveRecord(PayloadDataType, &p.Payload),
	}
}

// Encode writes the payload as a TLV stream.
func (p *SignableIDPayload) Encode(w io.Writer) error {
	records := p.knownRecords()
	for typ, val := range p.UnknownOddTypes {
		records = append(records, tlv.MakePrimitiveRecord(typ, &val))
	}
	tlv.SortRecords(records)

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// Bytes returns the serialized payload.
func (p *SignableIDPayload) Bytes() ([]byte, error) {
	return fn.Encode(p)
}

// Decode reads a payload written by Encode. Unknown even types are rejected,
// unknown odd types are kept.
func (p *SignableIDPayload) Decode(r io.Reader,
	opts ...record.DecodeOption) error {

	o := record.ApplyDecodeOptions(opts...)

	stream, err := tlv.NewStream(p.knownRecords()...)
	if err != nil {
		return err
	}

	parsedTypes, err := stream.DecodeWithParsedTypes(r)
	if err != nil {
		return fmt.Errorf("%w: %v", record.ErrFormat, err)
	}

	unknown, err := unknownOddTypes(parsedTypes)
	if err != nil {
		return err
	}
	p.UnknownOddTypes = unknown

	return record.CheckVersion(
		o.VersionPolicy, "signable ID payload", p.Version,
		PayloadVersion,
	)
}

// DecodeSignableIDPayload decodes a serialized payload.
func DecodeSignableIDPayload(b []byte,
	opts ...record.DecodeOption) (*SignableIDPayload, error) {

	var p SignableIDPayload
	if err := p.Decode(bytes.NewReader(b), opts...); err != nil {
		return nil, err
	}

	return &p, nil
}

// unknownOddTypes returns the parsed types we don't know about. An unknown
// even type is an error.
func unknownOddTypes(parsedTypes tlv.TypeMap) (tlv.TypeMap, error) {
	var unknown tlv.TypeMap
	for typ, val := range parsedTypes {
		if _, ok := knownPayloadTypes[typ]; ok {
			continue
		}

		if typ%2 == 0 {
			return nil, ErrUnknownType{
				UnknownType: typ,
				ValueBytes:  val,
			}
		}

		if unknown == nil {
			unknown = make(tlv.TypeMap)
		}
		unknown[typ] = val
	}

	return unknown, nil
}

func newTimeRecord(typ tlv.Type, t *time.Time) tlv.Record {
	return tlv.MakeStaticRecord(typ, t, 8, timeEncoder, timeDecoder)
}

func newPayloadTypeRecord(t *PayloadType) tlv.Record {
	return tlv.MakeStaticRecord(
		PayloadTypeType, t, 1, payloadTypeEncoder, payloadTypeDecoder,
	)
}

func timeEncoder(w io.Writer, val any, buf *[8]byte) error {
	if t, ok := val.(*time.Time); ok {
		return tlv.EUint64T(w, uint64(t.Unix()), buf)
	}
	return tlv.NewTypeForEncodingErr(val, "time.Time")
}

func timeDecoder(r io.Reader, val any, buf *[8]byte, l uint64) error {
	if typ, ok := val.(*time.Time); ok {
		var unix uint64
		if err := tlv.DUint64(r, &unix, buf, l); err != nil {
			return err
		}
		*typ = time.Unix(int64(unix), 0).UTC()
		return nil
	}
	return tlv.NewTypeForDecodingErr(val, "time.Time", l, 8)
}

func payloadTypeEncoder(w io.Writer, val any, buf *[8]byte) error {
	if t, ok := val.(*PayloadType); ok {
		return tlv.EUint8T(w, uint8(*t), buf)
	}
	return tlv.NewTypeForEncodingErr(val, "PayloadType")
}

func payloadTypeDecoder(r io.Reader, val any, buf *[8]byte, l uint64) error {
	if typ, ok := val.(*PayloadType); ok {
		var t uint8
		if err := tlv.DUint8(r, &t, buf, l); err != nil {
			return err
		}
		*typ = PayloadType(t)
		return nil
	}
	return tlv.NewTypeForDecodingErr(val, "PayloadType", l, 1)
}
