package test

import (
	"bytes"
	"testing"

	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

// RunUnknownTLVTypeTest checks how a TLV based decoder deals with types it
// doesn't know. An unknown even type must make decoding fail with an error of
// the same type as unknownTypeErr, while an unknown odd type must be skipped
// and handed to verify.
func RunUnknownTLVTypeTest[T any](t *testing.T, item T, unknownTypeErr error,
	encode func(*bytes.Buffer, T) error,
	decode func(*bytes.Buffer) (T, error), verify func(T, tlv.TypeMap)) {

	t.Helper()

	value := []byte("some future field")
	appendType := func(buf *bytes.Buffer, typ byte) {
		buf.Write(append([]byte{typ, byte(len(value))}, value...))
	}

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, item))
	appendType(&buf, 40)

	_, err := decode(&buf)
	require.ErrorAs(t, err, unknownTypeErr)

	buf.Reset()
	require.NoError(t, encode(&buf, item))
	appendType(&buf, 41)

	parsed, err := decode(&buf)
	require.NoError(t, err)

	verify(parsed, tlv.TypeMap{41: value})
}
