package cscript

import (
	"bytes"
	"slices"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/btcid/internal/test"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/keysource"
	"github.com/lightninglabs/btcid/record"
	lfn "github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// literalOpGen draws opcodes that are never mistaken for escape bytes.
var literalOpGen = rapid.SampledFrom([]byte{
	txscript.OP_DUP, txscript.OP_HASH160, txscript.OP_EQUALVERIFY,
	txscript.OP_CHECKSIG, txscript.OP_CHECKMULTISIG, txscript.OP_1,
	txscript.OP_2, txscript.OP_IF, txscript.OP_ELSE, txscript.OP_ENDIF,
})

// randKeySources returns num binary key sources of random keys.
func randKeySources(t testing.TB, num int) []*keysource.PublicKeySource {
	keys := make([]*keysource.PublicKeySource, num)
	for i, key := range test.RandCompressedKeys(t, num) {
		pks, err := keysource.New(
			keysource.BinarySource(key), keysource.WithCompressed(),
		)
		require.NoError(t, err)
		keys[i] = pks
	}

	return keys
}

// TestStandardP2PKH checks the template and key source of a P2PKH script.
func TestStandardP2PKH(t *testing.T) {
	t.Parallel()

	key := test.RandPubKey(t)
	script, err := StandardP2PKH(key.SerializeCompressed())
	require.NoError(t, err)

	require.Equal(t, []byte{
		txscript.OP_DUP, txscript.OP_HASH160, EscapeByte, 0x01,
		txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG,
	}, script.Template())
	require.False(t, script.UseP2SH())
	require.Equal(
		t, "OP_DUP OP_HASH160 <1 key> OP_EQUALVERIFY OP_CHECKSIG",
		script.Disasm(),
	)

	keys := script.PubKeySources()
	require.Len(t, keys, 1)
	require.True(t, keys[0].UseHash160())
	require.True(t, keys[0].UseCompressed())
	require.False(t, keys[0].IsStatic())
	require.Equal(t, key.SerializeCompressed(), keys[0].RawSource())

	// Filled with the root key itself, this is a regular P2PKH script.
	pkScript, err := script.PkScript(nil)
	require.NoError(t, err)

	params := &chaincfg.MainNetParams
	pkHashAddr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(key.SerializeCompressed()), params,
	)
	require.NoError(t, err)

	expected, err := txscript.PayToAddrScript(pkHashAddr)
	require.NoError(t, err)
	require.Equal(t, expected, pkScript)

	addr, err := script.Address(nil, params)
	require.NoError(t, err)
	require.Equal(t, pkHashAddr.EncodeAddress(), addr.EncodeAddress())

	// Filled with a derived key, the derived key is paid to.
	var chainCode [32]byte
	child, _, err := keyproof.DeriveChildPublicKeyWithProof(
		keyproof.NewSecp256k1Engine(), key, chainCode, []uint32{3},
	)
	require.NoError(t, err)

	childScript, err := script.RedeemScript([]*btcec.PublicKey{child})
	require.NoError(t, err)
	require.Contains(
		t, string(childScript),
		string(btcutil.Hash160(child.SerializeCompressed())),
	)

	_, err = script.RedeemScript([]*btcec.PublicKey{child, child})
	require.ErrorIs(t, err, record.ErrBadInput)

	// Uncompressed keys stay uncompressed.
	uncompressed, err := StandardP2PKH(key.SerializeUncompressed())
	require.NoError(t, err)
	require.False(t, uncompressed.PubKeySources()[0].UseCompressed())

	_, err = StandardP2PKH(key.SerializeCompressed()[:32])
	require.ErrorIs(t, err, record.ErrInvalidKey)
}

// TestStandardP2PK checks the template of a bare P2PK script.
func TestStandardP2PK(t *testing.T) {
	t.Parallel()

	key := test.RandPubKey(t)
	script, err := StandardP2PK(key.SerializeCompressed(), false)
	require.NoError(t, err)
	require.Equal(
		t, []byte{EscapeByte, 0x01, txscript.OP_CHECKSIG},
		script.Template(),
	)
	require.False(t, script.PubKeySources()[0].UseHash160())

	redeemScript, err := script.RedeemScript(nil)
	require.NoError(t, err)

	expected, err := txscript.NewScriptBuilder().
		AddData(key.SerializeCompressed()).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)
	require.Equal(t, expected, redeemScript)

	hashed, err := StandardP2PK(key.SerializeCompressed(), true)
	require.NoError(t, err)
	require.True(t, hashed.PubKeySources()[0].UseHash160())

	_, err = StandardP2PK(make([]byte, 64), false)
	require.ErrorIs(t, err, record.ErrInvalidKey)
}

// TestStandardMultisig checks sorted and unsorted multisig scripts.
func TestStandardMultisig(t *testing.T) {
	t.Parallel()

	pubKeys := test.RandCompressedKeys(t, 3)

	script, err := StandardMultisig(2, pubKeys)
	require.NoError(t, err)
	require.True(t, script.UseP2SH())
	require.Equal(t, []byte{
		txscript.OP_2, EscapeByte, 0x03, txscript.OP_3,
		txscript.OP_CHECKMULTISIG,
	}, script.Template())
	require.Contains(t, script.Disasm(), "<3 keys>")

	bundles := script.Bundles()
	require.Len(t, bundles, 1)
	require.Len(t, bundles[0], 3)

	// The bundle is sorted when the script is built.
	sortedKeys := slices.Clone(pubKeys)
	slices.SortFunc(sortedKeys, bytes.Compare)

	builder := txscript.NewScriptBuilder().AddOp(txscript.OP_2)
	for _, key := range sortedKeys {
		builder.AddData(key)
	}
	expected, err := builder.
		AddOp(txscript.OP_3).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	require.NoError(t, err)

	redeemScript, err := script.RedeemScript(nil)
	require.NoError(t, err)
	require.Equal(t, expected, redeemScript)

	pkScript, err := script.PkScript(nil)
	require.NoError(t, err)

	scriptAddr, err := btcutil.NewAddressScriptHash(
		expected, &chaincfg.TestNet3Params,
	)
	require.NoError(t, err)

	expectedPkScript, err := txscript.PayToAddrScript(scriptAddr)
	require.NoError(t, err)
	require.Equal(t, expectedPkScript, pkScript)

	addr, err := script.Address(nil, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	require.Equal(t, scriptAddr.EncodeAddress(), addr.EncodeAddress())

	// The unsorted variant keeps the order of the keys.
	unsorted, err := UnsortedMultisig(2, pubKeys)
	require.NoError(t, err)
	require.True(t, unsorted.UseP2SH())
	require.Len(t, unsorted.Bundles(), 3)
	require.Equal(t, []byte{
		txscript.OP_2, EscapeByte, 0x01, EscapeByte, 0x01,
		EscapeByte, 0x01, txscript.OP_3, txscript.OP_CHECKMULTISIG,
	}, unsorted.Template())

	unsortedScript, err := unsorted.RedeemScript(nil)
	require.NoError(t, err)
	for i, key := range pubKeys {
		// OP_2, then one push of 34 bytes per key.
		offset := 1 + i*34
		require.Equal(t, key, unsortedScript[offset+1:offset+34])
	}
}

// TestMultisigValidation covers the policy bounds and key checks of the
// multisig factories.
func TestMultisigValidation(t *testing.T) {
	t.Parallel()

	notOnCurve := make([]byte, 33)
	notOnCurve[0] = 0x02

	testCases := []struct {
		name    string
		m       int
		pubKeys [][]byte
		err     error
	}{{
		name:    "M is zero",
		m:       0,
		pubKeys: test.RandCompressedKeys(t, 3),
		err:     record.ErrBadInput,
	}, {
		name:    "M exceeds N",
		m:       4,
		pubKeys: test.RandCompressedKeys(t, 3),
		err:     record.ErrBadInput,
	}, {
		name:    "N exceeds maximum",
		m:       2,
		pubKeys: test.RandCompressedKeys(t, MaxN+1),
		err:     record.ErrBadInput,
	}, {
		name:    "M exceeds maximum",
		m:       MaxM + 1,
		pubKeys: test.RandCompressedKeys(t, MaxN),
		err:     record.ErrBadInput,
	}, {
		name:    "no keys",
		m:       1,
		pubKeys: nil,
		err:     record.ErrBadInput,
	}, {
		name:    "bad key length",
		m:       1,
		pubKeys: [][]byte{make([]byte, 20)},
		err:     record.ErrInvalidKey,
	}, {
		name:    "key not on curve",
		m:       1,
		pubKeys: [][]byte{notOnCurve},
		err:     record.ErrInvalidKey,
	}}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := StandardMultisig(testCase.m, testCase.pubKeys)
			require.ErrorIs(t, err, testCase.err)

			_, err = UnsortedMultisig(testCase.m, testCase.pubKeys)
			require.ErrorIs(t, err, testCase.err)
		})
	}

	// The engine decides which keys are valid.
	engine := keyproof.NewMockEngine()
	_, err := StandardMultisig(
		1, test.RandCompressedKeys(t, 1), WithEngine(engine),
	)
	require.NoError(t, err)
}

// TestTemplateErrors covers malformed templates and key count mismatches.
func TestTemplateErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseTemplate([]byte{txscript.OP_1, EscapeByte, EscapeByte})
	require.ErrorIs(t, err, record.ErrTemplate)

	_, err = ParseTemplate([]byte{txscript.OP_1, EscapeByte})
	require.ErrorIs(t, err, record.ErrTemplate)

	_, err = New(
		[]byte{EscapeByte, 0x02, txscript.OP_CHECKSIG},
		randKeySources(t, 1), false,
	)
	require.ErrorIs(t, err, record.ErrTemplate)

	_, err = New(
		[]byte{EscapeByte, 0x01}, []*keysource.PublicKeySource{nil},
		false,
	)
	require.ErrorIs(t, err, record.ErrBadInput)

	_, err = UnescapeFF([]byte{EscapeByte, 0x01})
	require.ErrorIs(t, err, record.ErrTemplate)

	_, err = DisasmTemplate([]byte{EscapeByte})
	require.ErrorIs(t, err, record.ErrTemplate)
}

// TestLiteralEscape makes sure an escaped 0xff ends up as a single byte in
// the built script.
func TestLiteralEscape(t *testing.T) {
	t.Parallel()

	template := append(
		[]byte{txscript.OP_1}, EscapeFF([]byte{EscapeByte})...,
	)
	template = append(template, EscapeByte, 0x01, txscript.OP_CHECKSIG)

	keys := randKeySources(t, 1)
	script, err := New(template, keys, false)
	require.NoError(t, err)
	require.Len(t, script.Slots(), 2)
	require.True(t, script.Slots()[0].IsLiteral())
	require.Len(t, script.Bundles(), 1)

	pubKey, err := keys[0].PubKey()
	require.NoError(t, err)

	redeemScript, err := script.RedeemScript(nil)
	require.NoError(t, err)

	expected := append(
		[]byte{txscript.OP_1, EscapeByte, txscript.OP_DATA_33},
		pubKey.SerializeCompressed()...,
	)
	expected = append(expected, txscript.OP_CHECKSIG)
	require.Equal(t, expected, redeemScript)
}

// TestEscapeRoundTrip checks that escaped bytes only produce literal slots
// and unescape to the original bytes.
func TestEscapeRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOf(rapid.SampledFrom([]byte{
			0x00, 0x01, 0x51, 0xac, 0xfe, EscapeByte,
		})).Draw(t, "raw")

		escaped := EscapeFF(raw)
		slots, err := ParseTemplate(escaped)
		require.NoError(t, err)
		require.Len(t, slots, bytes.Count(raw, []byte{EscapeByte}))
		for _, slot := range slots {
			require.True(t, slot.IsLiteral())
		}

		unescaped, err := UnescapeFF(escaped)
		require.NoError(t, err)
		require.Equal(t, len(raw), len(unescaped))
		require.True(t, bytes.Equal(raw, unescaped))

		// A literal-only template takes no keys.
		script, err := New(escaped, nil, false)
		require.NoError(t, err)
		require.Zero(t, script.NumKeys())
		require.Empty(t, script.Bundles())
	})
}

// TestBundleInvariant checks that the bundles partition the key list and
// refer to the same key source records.
func TestBundleInvariant(t *testing.T) {
	t.Parallel()

	keyPool := randKeySources(t, 20)

	rapid.Check(t, func(t *rapid.T) {
		var (
			template []byte
			sizes    []int
			numKeys  int
		)
		numPieces := rapid.IntRange(0, 8).Draw(t, "num_pieces")
		for i := 0; i < numPieces; i++ {
			template = append(template, literalOpGen.Draw(t, "op"))

			size := rapid.IntRange(0, 4).Draw(t, "slot_size")
			template = append(template, EscapeByte, byte(size))
			if size > 0 {
				sizes = append(sizes, size)
				numKeys += size
			}
		}

		keys := make([]*keysource.PublicKeySource, numKeys)
		for i := range keys {
			keys[i] = keyPool[rapid.IntRange(0, 19).Draw(t, "key")]
		}

		script, err := New(template, keys, false)
		require.NoError(t, err)

		bundles := script.Bundles()
		require.Len(t, bundles, len(sizes))

		var flat []*keysource.PublicKeySource
		for i, bundle := range bundles {
			require.Len(t, bundle, sizes[i])
			require.Equal(t, sizes[i], script.BundleRanges()[i].Len())
			flat = append(flat, bundle...)
		}
		require.Len(t, flat, len(keys))
		for i := range flat {
			require.Same(t, keys[i], flat[i])
		}

		// Too many or too few keys are rejected.
		_, err = New(template, append(keys, keyPool[0]), false)
		require.ErrorIs(t, err, record.ErrTemplate)
		if numKeys > 0 {
			_, err = New(template, keys[1:], false)
			require.ErrorIs(t, err, record.ErrTemplate)
		}
	})
}

// TestImmutable makes sure a script doesn't share memory with its inputs or
// outputs.
func TestImmutable(t *testing.T) {
	t.Parallel()

	template := []byte{EscapeByte, 0x02, txscript.OP_CHECKSIG}
	keys := randKeySources(t, 2)
	first := keys[0]

	script, err := New(template, keys, false)
	require.NoError(t, err)

	template[1] = 0x05
	keys[0] = keys[1]
	require.Equal(t, byte(0x02), script.Template()[1])
	require.Same(t, first, script.PubKeySources()[0])

	bundles := script.Bundles()
	bundles[0][0] = keys[1]
	require.Same(t, first, script.Bundles()[0][0])
	require.Same(t, first, script.PubKeySources()[0])
}

// TestRoundTrip makes sure scripts survive serialization, with and without
// checksums.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, withChecksum := range []bool{true, false} {
		var opts []Option
		if !withChecksum {
			opts = append(opts, WithoutChecksum())
		}

		script, err := StandardMultisig(
			2, test.RandCompressedKeys(t, 3), opts...,
		)
		require.NoError(t, err)
		require.Equal(t, withChecksum, script.ChecksumPresent())

		encoded, err := script.Bytes()
		require.NoError(t, err)

		decoded, err := Parse(encoded)
		require.NoError(t, err)
		require.Equal(t, script, decoded)

		for cut := 0; cut < len(encoded); cut++ {
			_, err := Parse(encoded[:cut])
			require.ErrorIs(t, err, record.ErrFormat)
		}
	}

	// A script without keys round trips as well.
	empty, err := New(nil, nil, false)
	require.NoError(t, err)

	encoded, err := empty.Bytes()
	require.NoError(t, err)

	decoded, err := Parse(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded.Template())
	require.Zero(t, decoded.NumKeys())
}

// TestDecodeErrors covers checksum, version and template failures on
// decode.
func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	script, err := StandardP2PKH(test.RandPubKey(t).SerializeCompressed())
	require.NoError(t, err)

	encoded, err := script.Bytes()
	require.NoError(t, err)

	// Two corrupted bytes in the key data can't be repaired.
	corrupted := bytes.Clone(encoded)
	corrupted[len(corrupted)-10] ^= 0x11
	corrupted[len(corrupted)-20] ^= 0x22
	_, err = Parse(corrupted)
	require.ErrorIs(t, err, record.ErrChecksum)

	// A single one can.
	corrupted[len(corrupted)-20] ^= 0x22
	repaired, err := Parse(corrupted)
	require.NoError(t, err)
	require.Equal(t, script, repaired)

	// Clearing the checksum flag together with a key byte is detected.
	corrupted[2] ^= 1 << FlagChecksum
	corrupted[len(corrupted)-20] ^= 0x22
	_, err = Parse(corrupted)
	require.ErrorIs(t, err, record.ErrChecksum)

	// Unknown versions are only accepted by the permissive policy.
	newer, err := StandardP2PKH(
		test.RandPubKey(t).SerializeCompressed(), WithVersion(1),
	)
	require.NoError(t, err)

	newerBytes, err := newer.Bytes()
	require.NoError(t, err)

	_, err = Parse(newerBytes)
	require.ErrorIs(t, err, record.ErrVersion)

	decoded, err := Parse(newerBytes, record.WithVersionPolicy(
		record.VersionPermissive,
	))
	require.NoError(t, err)
	require.Equal(t, uint8(1), decoded.Version())

	// A template that doesn't match the number of keys is rejected.
	keyInner, err := script.PubKeySources()[0].InnerBytes()
	require.NoError(t, err)

	var inner bytes.Buffer
	require.NoError(t, record.WriteUint8(&inner, V0))
	require.NoError(t, record.WriteFlags8(&inner, 0))
	require.NoError(t, record.WriteVarBytes(
		&inner, []byte{EscapeByte, 0x02},
	))
	require.NoError(t, record.WriteUint8(&inner, 1))
	require.NoError(t, record.WriteVarBytes(&inner, keyInner))

	_, err = DecodeInner(inner.Bytes())
	require.ErrorIs(t, err, record.ErrTemplate)

	// A key count larger than the keys present is a format error.
	truncated := inner.Bytes()[:inner.Len()-len(keyInner)-1]
	truncated[len(truncated)-1] = 2
	_, err = DecodeInner(truncated)
	require.ErrorIs(t, err, record.ErrFormat)
}

// TestDerivedMultisig builds a multisig script from keys derived from the
// roots of the script.
func TestDerivedMultisig(t *testing.T) {
	t.Parallel()

	engine := keyproof.NewSecp256k1Engine()
	roots := test.RandPubKeys(t, 2)
	chainCode := test.RandChainCode()

	rootBytes := make([][]byte, len(roots))
	derived := make([]*btcec.PublicKey, len(roots))
	for i, root := range roots {
		rootBytes[i] = root.SerializeCompressed()

		child, proof, err := keyproof.DeriveChildPublicKeyWithProof(
			engine, root, chainCode, []uint32{0, 5},
		)
		require.NoError(t, err)

		applied, err := keyproof.ApplyProofToRootKey(
			engine, root, proof, lfn.Some(child),
		)
		require.NoError(t, err)
		derived[i] = applied
	}

	script, err := StandardMultisig(1, rootBytes)
	require.NoError(t, err)

	redeemScript, err := script.RedeemScript(derived)
	require.NoError(t, err)
	for _, key := range derived {
		require.True(t, bytes.Contains(
			redeemScript, key.SerializeCompressed(),
		))
	}
	for _, root := range rootBytes {
		require.False(t, bytes.Contains(redeemScript, root))
	}
}
