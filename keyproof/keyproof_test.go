package keyproof

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/lightninglabs/btcid/internal/test"
	"github.com/lightninglabs/btcid/record"
	lfn "github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	tv1XPub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhe" +
		"PY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	tv1XPrv = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPP" +
		"qjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
)

type derivationVector struct {
	Path         []uint32 `json:"path"`
	Multipliers  []string `json:"multipliers"`
	ChildKey     string   `json:"child_key"`
	ChildPrivKey string   `json:"child_priv_key"`
	Proof        string   `json:"proof"`
}

type derivationVectors struct {
	RootKey     string              `json:"root_key"`
	RootPrivKey string              `json:"root_priv_key"`
	ChainCode   string              `json:"chain_code"`
	Vectors     []*derivationVector `json:"vectors"`
}

// TestDerivationVectors makes sure derivation, proof serialization and proof
// application reproduce the stored vectors.
func TestDerivationVectors(t *testing.T) {
	t.Parallel()

	var vectors derivationVectors
	test.ParseTestVectors(t, "derivation_vectors.json", &vectors)

	rootKey, err := ParseCompressedPubKey(
		test.ParseHex(t, vectors.RootKey),
	)
	require.NoError(t, err)

	var chainCode [32]byte
	copy(chainCode[:], test.ParseHex(t, vectors.ChainCode))

	rootPriv, _ := btcec.PrivKeyFromBytes(
		test.ParseHex(t, vectors.RootPrivKey),
	)
	require.True(t, rootPriv.PubKey().IsEqual(rootKey))

	engine := NewSecp256k1Engine()
	for _, vector := range vectors.Vectors {
		vector := vector
		t.Run(FormatPath(vector.Path), func(t *testing.T) {
			child, proof, err := DeriveChildPublicKeyWithProof(
				engine, rootKey, chainCode, vector.Path,
			)
			require.NoError(t, err)

			require.Equal(
				t, vector.ChildKey,
				hex.EncodeToString(child.SerializeCompressed()),
			)

			mults := proof.Multipliers()
			require.Len(t, mults, len(vector.Multipliers))
			for i, mult := range mults {
				require.Equal(
					t, vector.Multipliers[i],
					hex.EncodeToString(mult[:]),
				)
			}

			proofBytes, err := proof.Bytes()
			require.NoError(t, err)
			require.Equal(
				t, vector.Proof, hex.EncodeToString(proofBytes),
			)

			parsed, err := ParseMultiplierProof(proofBytes)
			require.NoError(t, err)
			require.Equal(t, proof, parsed)

			applied, err := ApplyProofToRootKey(
				engine, rootKey, parsed, lfn.Some(child),
			)
			require.NoError(t, err)
			require.True(t, applied.IsEqual(child))

			// The private key multiplied with the same
			// multipliers must belong to the derived public key.
			childPriv, _ := btcec.PrivKeyFromBytes(
				test.ParseHex(t, vector.ChildPrivKey),
			)
			require.True(t, childPriv.PubKey().IsEqual(child))
			require.True(t, multiplyPrivKey(
				rootPriv, mults,
			).PubKey().IsEqual(child))
		})
	}
}

// multiplyPrivKey applies the multipliers to a private key.
func multiplyPrivKey(privKey *btcec.PrivateKey,
	mults []Multiplier) *btcec.PrivateKey {

	scalar := privKey.Key
	for _, mult := range mults {
		var m btcec.ModNScalar
		m.SetBytes((*[MultiplierSize]byte)(&mult))
		scalar.Mul(&m)
	}

	return btcec.PrivKeyFromScalar(&scalar)
}

// TestDeriveApplyAgreement checks that applying a freshly generated proof to
// its root key always yields the derived key.
func TestDeriveApplyAgreement(t *testing.T) {
	t.Parallel()

	engine := NewSecp256k1Engine()
	rapid.Check(t, func(t *rapid.T) {
		rootPriv := test.PrivKeyGen.Draw(t, "root")
		chainCode := test.ChainCodeGen.Draw(t, "chain_code")
		path := test.PathGen.Draw(t, "path")

		rootKey := rootPriv.PubKey()
		child, proof, err := DeriveChildPublicKeyWithProof(
			engine, rootKey, chainCode, path,
		)
		require.NoError(t, err)
		require.Equal(t, len(path), proof.NumMultipliers())
		require.Equal(t, KeyFingerprint(rootKey), proof.SrcFingerprint())
		require.Equal(t, KeyFingerprint(child), proof.DstFingerprint())

		applied, err := ApplyProofToRootKey(
			engine, rootKey, proof, lfn.None[*btcec.PublicKey](),
		)
		require.NoError(t, err)
		require.True(t, applied.IsEqual(child))

		privChild := multiplyPrivKey(rootPriv, proof.Multipliers())
		require.True(t, privChild.PubKey().IsEqual(child))
	})
}

// TestExtendedKeyDerivation derives from a parsed BIP32 extended key and
// checks that public and private extended keys give the same result.
func TestExtendedKeyDerivation(t *testing.T) {
	t.Parallel()

	pubExt, err := ExtendedPubKeyFromString(tv1XPub)
	require.NoError(t, err)

	privExt, err := ExtendedPubKeyFromString(tv1XPrv)
	require.NoError(t, err)

	require.True(t, pubExt.PubKey.IsEqual(privExt.PubKey))
	require.Equal(t, pubExt.ChainCode, privExt.ChainCode)
	require.Equal(
		t, "0339a36013301597daef41fbe593a02cc513d0b55527ec2df1050e2e8f"+
			"f49c85c2",
		hex.EncodeToString(pubExt.PubKey.SerializeCompressed()),
	)

	_, err = ExtendedPubKeyFromString("xpub-nope")
	require.ErrorIs(t, err, record.ErrInvalidKey)
}

// TestHardenedPathRejected makes sure hardened paths fail before any
// derivation work is done.
func TestHardenedPathRejected(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		engine := NewMockEngine()
		prefix := test.PathGen.Draw(t, "prefix")
		hardened := test.HardenedIndexGen.Draw(t, "hardened")
		suffix := test.PathGen.Draw(t, "suffix")

		path := append(append(prefix, hardened), suffix...)

		child, proof, err := DeriveChildPublicKeyWithProof(
			engine, test.PubKeyGen.Draw(t, "root"),
			test.ChainCodeGen.Draw(t, "chain_code"), path,
		)
		require.ErrorIs(t, err, record.ErrDerivation)
		require.Nil(t, child)
		require.Nil(t, proof)
		require.Zero(t, engine.DeriveCalls.Load())
	})

	// The engine itself refuses hardened steps as well.
	_, _, err := NewSecp256k1Engine().ChildKeyDerive(ExtendedPubKey{
		PubKey: test.RandPubKey(t),
	}, hdkeychain.HardenedKeyStart)
	require.ErrorIs(t, err, record.ErrDerivation)
}

// TestApplyProofErrors covers the failure modes of proof application.
func TestApplyProofErrors(t *testing.T) {
	t.Parallel()

	engine := NewSecp256k1Engine()
	rootKey := test.RandPubKey(t)
	chainCode := test.RandChainCode()

	child, proof, err := DeriveChildPublicKeyWithProof(
		engine, rootKey, chainCode, []uint32{7, 8},
	)
	require.NoError(t, err)

	mults := proof.Multipliers()
	var zeroMult, overflowMult Multiplier
	for i := range overflowMult {
		overflowMult[i] = 0xff
	}

	errEngine := errors.New("engine broke")

	testCases := []struct {
		name     string
		engine   Engine
		root     *btcec.PublicKey
		proof    *MultiplierProof
		expected lfn.Option[*btcec.PublicKey]
		err      error
	}{{
		name:     "wrong root key",
		engine:   engine,
		root:     test.RandPubKey(t),
		proof:    proof,
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrKeyMismatch,
	}, {
		name:     "wrong expected key",
		engine:   engine,
		root:     rootKey,
		proof:    proof,
		expected: lfn.Some(test.RandPubKey(t)),
		err:      record.ErrKeyMismatch,
	}, {
		name:   "wrong destination fingerprint",
		engine: engine,
		root:   rootKey,
		proof: NewMultiplierProof(
			KeyFingerprint(rootKey), Fingerprint{1, 2, 3, 4},
			mults,
		),
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrKeyMismatch,
	}, {
		name:   "missing multiplier",
		engine: engine,
		root:   rootKey,
		proof: NewMultiplierProof(
			KeyFingerprint(rootKey), KeyFingerprint(child),
			mults[:1],
		),
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrKeyMismatch,
	}, {
		name:   "zero multiplier",
		engine: engine,
		root:   rootKey,
		proof: NewMultiplierProof(
			KeyFingerprint(rootKey), KeyFingerprint(child),
			[]Multiplier{mults[0], zeroMult},
		),
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrDerivation,
	}, {
		name:   "overflowing multiplier",
		engine: engine,
		root:   rootKey,
		proof: NewMultiplierProof(
			KeyFingerprint(rootKey), KeyFingerprint(child),
			[]Multiplier{overflowMult},
		),
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrDerivation,
	}, {
		name:     "engine failure",
		engine:   &MockEngine{Engine: engine, FailApply: errEngine},
		root:     rootKey,
		proof:    proof,
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrDerivation,
	}, {
		name:     "engine returns nothing",
		engine:   &MockEngine{Engine: engine, ReturnNil: true},
		root:     rootKey,
		proof:    proof,
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrDerivation,
	}, {
		name:     "null proof",
		engine:   engine,
		root:     rootKey,
		proof:    NewNullMultiplierProof(),
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrBadInput,
	}, {
		name:     "missing root",
		engine:   engine,
		proof:    proof,
		expected: lfn.None[*btcec.PublicKey](),
		err:      record.ErrInvalidKey,
	}}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			key, err := ApplyProofToRootKey(
				testCase.engine, testCase.root, testCase.proof,
				testCase.expected,
			)
			require.ErrorIs(t, err, testCase.err)
			require.Nil(t, key)
		})
	}
}

// TestDeriveEngineFailure makes sure engine errors are reported as derivation
// errors.
func TestDeriveEngineFailure(t *testing.T) {
	t.Parallel()

	engine := NewMockEngine()
	engine.FailDerive = errors.New("no luck")

	_, _, err := DeriveChildPublicKeyWithProof(
		engine, test.RandPubKey(t), test.RandChainCode(), []uint32{1},
	)
	require.ErrorIs(t, err, record.ErrDerivation)
	require.EqualValues(t, 1, engine.DeriveCalls.Load())

	_, _, err = DeriveChildPublicKeyWithProof(
		engine, nil, test.RandChainCode(), []uint32{1},
	)
	require.ErrorIs(t, err, record.ErrInvalidKey)
}

// TestMultiplierProofEncoding covers proof serialization edge cases.
func TestMultiplierProofEncoding(t *testing.T) {
	t.Parallel()

	nullBytes, err := NewNullMultiplierProof().Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, nullBytes)

	nullProof, err := ParseMultiplierProof(nullBytes)
	require.NoError(t, err)
	require.True(t, nullProof.IsNull())
	require.Zero(t, nullProof.NumMultipliers())

	rapid.Check(t, func(t *rapid.T) {
		numMults := rapid.IntRange(0, 8).Draw(t, "num_mults")
		mults := make([]Multiplier, numMults)
		for i := range mults {
			copy(mults[i][:], rapid.SliceOfN(
				rapid.Byte(), MultiplierSize, MultiplierSize,
			).Draw(t, "mult"))
		}

		var src, dst Fingerprint
		copy(src[:], rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "src"))
		copy(dst[:], rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "dst"))

		proof := NewMultiplierProof(src, dst, mults)
		proofBytes, err := proof.Bytes()
		require.NoError(t, err)
		require.Len(t, proofBytes, 1+4+4+1+numMults*MultiplierSize)

		parsed, err := ParseMultiplierProof(proofBytes)
		require.NoError(t, err)
		require.Equal(t, proof, parsed)

		// Every truncation must be detected as a format error.
		cut := rapid.IntRange(0, len(proofBytes)-1).Draw(t, "cut")
		_, err = ParseMultiplierProof(proofBytes[:cut])
		require.ErrorIs(t, err, record.ErrFormat)

		// So must trailing garbage.
		_, err = ParseMultiplierProof(append(proofBytes, 0x00))
		require.ErrorIs(t, err, record.ErrFormat)
	})
}

// TestMultiplierProofImmutable makes sure a proof doesn't share memory with
// its inputs or outputs.
func TestMultiplierProofImmutable(t *testing.T) {
	t.Parallel()

	mults := []Multiplier{{1}, {2}}
	proof := NewMultiplierProof(Fingerprint{1}, Fingerprint{2}, mults)

	mults[0][0] = 0xaa
	require.Equal(t, byte(1), proof.Multipliers()[0][0])

	out := proof.Multipliers()
	out[1][0] = 0xbb
	require.Equal(t, byte(2), proof.Multipliers()[1][0])

	test.AssertCopyEqual(t, proof)
}

// TestKeyFingerprint checks that the fingerprint only depends on the key
// itself, not on its serialization.
func TestKeyFingerprint(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		key := test.PubKeyGen.Draw(t, "key")

		uncompressed, err := ParsePubKey(key.SerializeUncompressed())
		require.NoError(t, err)
		require.Equal(t, KeyFingerprint(key), KeyFingerprint(uncompressed))
		require.Equal(
			t, Hash256Prefix(key.SerializeCompressed()),
			KeyFingerprint(key),
		)
	})
}

// TestParsePath covers path parsing and formatting.
func TestParsePath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		path     string
		expected []uint32
		err      error
	}{
		{path: "m", expected: nil},
		{path: "", expected: nil},
		{path: "m/0/1/2", expected: []uint32{0, 1, 2}},
		{path: "5/2147483647", expected: []uint32{5, 2147483647}},
		{path: "m/0'/1", err: record.ErrDerivation},
		{path: "m/0h", err: record.ErrDerivation},
		{path: "m/2147483648", err: record.ErrDerivation},
		{path: "m/x", err: record.ErrBadInput},
		{path: "m//1", err: record.ErrBadInput},
	}

	for _, testCase := range testCases {
		path, err := ParsePath(testCase.path)
		if testCase.err != nil {
			require.ErrorIs(t, err, testCase.err, testCase.path)
			continue
		}

		require.NoError(t, err, testCase.path)
		require.Equal(t, testCase.expected, path)

		reparsed, err := ParsePath(FormatPath(path))
		require.NoError(t, err)
		require.Equal(t, path, reparsed)
	}

	require.Equal(
		t, "m/1/0'", FormatPath([]uint32{1, hdkeychain.HardenedKeyStart}),
	)
}

// TestParsePubKey covers public key parsing and validation.
func TestParsePubKey(t *testing.T) {
	t.Parallel()

	engine := NewSecp256k1Engine()
	key := test.RandPubKey(t)

	require.True(t, engine.IsValidPublicKey(key.SerializeCompressed()))
	require.True(t, engine.IsValidPublicKey(key.SerializeUncompressed()))
	require.False(t, engine.IsValidPublicKey(key.SerializeCompressed()[1:]))

	notOnCurve := bytes.Repeat([]byte{0x00}, 33)
	notOnCurve[0] = 0x02
	require.False(t, engine.IsValidPublicKey(notOnCurve))

	_, err := ParsePubKey(notOnCurve)
	require.ErrorIs(t, err, record.ErrInvalidKey)

	_, err = ParseCompressedPubKey(key.SerializeUncompressed())
	require.ErrorIs(t, err, record.ErrInvalidKey)

	parsed, err := ParseCompressedPubKey(key.SerializeCompressed())
	require.NoError(t, err)
	require.True(t, parsed.IsEqual(key))

	uncompressed := key.SerializeUncompressed()
	require.Len(t, uncompressed, PubKeyBytesLenUncompressed)

	parsed, err = ParsePubKey(uncompressed)
	require.NoError(t, err)
	require.True(t, parsed.IsEqual(key))
}
