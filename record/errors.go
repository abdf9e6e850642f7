package record

import "errors"

var (
	// ErrFormat is returned when a record is truncated, or one of its
	// length or count fields is malformed or out of range.
	ErrFormat = errors.New("record: malformed encoding")

	// ErrVersion is returned when a decoded record carries a version that
	// isn't the one supported by this package.
	ErrVersion = errors.New("record: unsupported version")

	// ErrChecksum is returned when a record's trailing checksum can neither
	// be verified nor used to repair the record.
	ErrChecksum = errors.New("record: checksum mismatch")

	// ErrTemplate is returned when a script template contains badly escaped
	// bytes, or its slot sizes don't add up to the number of public keys.
	ErrTemplate = errors.New("record: invalid script template")

	// ErrEncoding is returned when the external source flag of a key source
	// contradicts the representation of its raw source.
	ErrEncoding = errors.New("record: source encoding mismatch")

	// ErrDerivation is returned when a hardened index is used for a public
	// derivation, or the curve arithmetic fails.
	ErrDerivation = errors.New("record: key derivation failed")

	// ErrKeyMismatch is returned when a fingerprint or the expected key
	// doesn't match the result of applying a proof.
	ErrKeyMismatch = errors.New("record: key mismatch")

	// ErrInvalidKey is returned for public keys of the wrong size, or ones
	// that aren't on the curve.
	ErrInvalidKey = errors.New("record: invalid public key")

	// ErrBadInput is returned when arguments are outside of the allowed
	// policy bounds, such as M or N of a multisig script.
	ErrBadInput = errors.New("record: bad input")
)
