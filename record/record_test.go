package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestFlags makes sure bits can be set and cleared independently.
func TestFlags(t *testing.T) {
	t.Parallel()

	var f Flags
	f.Set(0, true)
	f.Set(6, true)
	f.Set(15, true)
	require.True(t, f.Get(0))
	require.False(t, f.Get(1))
	require.True(t, f.Get(6))
	require.True(t, f.Get(15))

	f.Set(6, false)
	require.False(t, f.Get(6))
	require.Equal(t, Flags(1|1<<15), f)

	var buf bytes.Buffer
	require.NoError(t, WriteFlags16(&buf, f))
	require.Equal(t, []byte{0x01, 0x80}, buf.Bytes())

	decoded, err := ReadFlags16(&buf)
	require.NoError(t, err)
	require.Equal(t, f, decoded)
}

// TestReadTruncated makes sure every reader reports ErrFormat on short
// input.
func TestReadTruncated(t *testing.T) {
	t.Parallel()

	_, err := ReadUint8(bytes.NewReader(nil), "byte")
	require.ErrorIs(t, err, ErrFormat)

	_, err = ReadUint16(bytes.NewReader([]byte{1}), "short")
	require.ErrorIs(t, err, ErrFormat)

	_, err = ReadVarInt(bytes.NewReader([]byte{0xfd, 0x01}))
	require.ErrorIs(t, err, ErrFormat)

	// A length prefix of 5 with only 2 bytes following.
	_, err = ReadVarBytes(bytes.NewReader([]byte{5, 1, 2}), "field")
	require.ErrorIs(t, err, ErrFormat)

	_, err = ReadCount(bytes.NewReader([]byte{10}), 9, "things")
	require.ErrorIs(t, err, ErrFormat)
}

// TestChecksumCorrection makes sure a single corrupted byte is repaired and
// more corruption is detected.
func TestChecksumCorrection(t *testing.T) {
	t.Parallel()

	cs := &Hash256Checksummer{}
	data := []byte("a public key source record of some length")
	sum := cs.Compute(data)

	verified, err := cs.VerifyAndCorrect(data, sum)
	require.NoError(t, err)
	require.Equal(t, data, verified)

	corrupted := bytes.Clone(data)
	corrupted[7] ^= 0x5a
	repaired, err := cs.VerifyAndCorrect(corrupted, sum)
	require.NoError(t, err)
	require.Equal(t, data, repaired)

	// The input must not be modified in place.
	require.NotEqual(t, data, corrupted)

	corrupted[20] ^= 0x01
	_, err = cs.VerifyAndCorrect(corrupted, sum)
	require.ErrorIs(t, err, ErrChecksum)

	strict := &Hash256Checksummer{NoCorrection: true}
	corrupted = bytes.Clone(data)
	corrupted[0] ^= 0x01
	_, err = strict.VerifyAndCorrect(corrupted, sum)
	require.ErrorIs(t, err, ErrChecksum)
}

// TestChecksumRepairLimit makes sure records above MaxRepairSize are only
// verified, never repaired.
func TestChecksumRepairLimit(t *testing.T) {
	t.Parallel()

	cs := &Hash256Checksummer{}

	atLimit := bytes.Repeat([]byte{0xab}, MaxRepairSize)
	sum := cs.Compute(atLimit)

	corrupted := bytes.Clone(atLimit)
	corrupted[0] ^= 0x01
	repaired, err := cs.VerifyAndCorrect(corrupted, sum)
	require.NoError(t, err)
	require.Equal(t, atLimit, repaired)

	large := bytes.Repeat([]byte{0xab}, MaxFieldSize)
	sum = cs.Compute(large)

	verified, err := cs.VerifyAndCorrect(large, sum)
	require.NoError(t, err)
	require.Equal(t, large, verified)

	large[len(large)-1] ^= 0x01
	_, err = cs.VerifyAndCorrect(large, sum)
	require.ErrorIs(t, err, ErrChecksum)
}

// TestParseRecordChecksumFlag makes sure a cleared checksum flag doesn't
// turn a checksummed record into an unchecked one.
func TestParseRecordChecksumFlag(t *testing.T) {
	t.Parallel()

	flag := ChecksumFlag{Offset: 1, Bit: 6}
	inner := []byte{0x00, 0x40, 0x00, 0x03, 0xaa, 0xbb, 0xcc}
	require.True(t, flag.IsSet(inner))

	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, inner, true, DefaultChecksummer))
	encoded := buf.Bytes()

	decoded, err := ParseRecord(encoded, flag, DefaultChecksummer)
	require.NoError(t, err)
	require.Equal(t, inner, decoded)

	// Only the flag is cleared: the checksum still covers the record.
	cleared := bytes.Clone(encoded)
	cleared[2] &^= 0x40
	decoded, err = ParseRecord(cleared, flag, DefaultChecksummer)
	require.NoError(t, err)
	require.Equal(t, inner, decoded)

	// The flag and a payload byte are corrupted.
	cleared[5] ^= 0x55
	_, err = ParseRecord(cleared, flag, DefaultChecksummer)
	require.ErrorIs(t, err, ErrChecksum)

	// Other trailing data is still a format error.
	_, err = ParseRecord(
		append(bytes.Clone(cleared), 0x00), flag, DefaultChecksummer,
	)
	require.ErrorIs(t, err, ErrFormat)
	_, err = ParseRecord(
		append(bytes.Clone(encoded), 0x00), flag, DefaultChecksummer,
	)
	require.ErrorIs(t, err, ErrFormat)
}

// TestRecordWrapping tests the outer wrapper with and without checksum.
func TestRecordWrapping(t *testing.T) {
	t.Parallel()

	inner := []byte{0x00, 0x41, 0x00, 0x03, 0xaa, 0xbb, 0xcc}
	withSum := func([]byte) bool { return true }
	withoutSum := func([]byte) bool { return false }

	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, inner, true, DefaultChecksummer))
	require.Len(t, buf.Bytes(), 1+len(inner)+ChecksumSize)

	raw := buf.Bytes()
	decoded, err := ReadRecord(
		bytes.NewReader(raw), withSum, DefaultChecksummer,
	)
	require.NoError(t, err)
	require.Equal(t, inner, decoded)

	// Missing checksum bytes are a format error.
	_, err = ReadRecord(
		bytes.NewReader(raw[:len(raw)-2]), withSum, DefaultChecksummer,
	)
	require.ErrorIs(t, err, ErrFormat)

	buf.Reset()
	require.NoError(t, WriteRecord(&buf, inner, false, nil))
	decoded, err = ReadRecord(&buf, withoutSum, nil)
	require.NoError(t, err)
	require.Equal(t, inner, decoded)
}

// TestCheckVersion tests both version policies.
func TestCheckVersion(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckVersion(VersionStrict, "test", 0, 0))
	require.ErrorIs(t, CheckVersion(VersionStrict, "test", 1, 0), ErrVersion)
	require.NoError(t, CheckVersion(VersionPermissive, "test", 1, 0))

	opts := ApplyDecodeOptions(WithVersionPolicy(VersionPermissive))
	require.Equal(t, VersionPermissive, opts.VersionPolicy)
	require.Equal(t, DefaultChecksummer, opts.Checksummer)
}

// TestVarBytesRoundTrip is a property test for the length-prefixed field
// encoding.
func TestVarBytesRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		b := rapid.SliceOfN(rapid.Byte(), 0, 600).Draw(t, "bytes")

		var buf bytes.Buffer
		require.NoError(t, WriteVarBytes(&buf, b))

		decoded, err := ReadVarBytes(&buf, "bytes")
		require.NoError(t, err)
		require.Equal(t, len(b), len(decoded))
		require.True(t, bytes.Equal(b, decoded))
	})
}
