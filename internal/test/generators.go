package test

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"pgregory.net/rapid"
)

var (
	// PrivKeyGen draws private keys from a random 32-byte scalar.
	PrivKeyGen = rapid.Custom(func(t *rapid.T) *btcec.PrivateKey {
		keyBytes := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(
			t, "key_bytes",
		)

		privKey, _ := btcec.PrivKeyFromBytes(keyBytes)

		// A zero or overflowing scalar isn't a usable key, which
		// happens with negligible probability. We still need to
		// handle it for shrunk inputs such as all zero bytes.
		if privKey.Key.IsZero() {
			privKey, _ = btcec.PrivKeyFromBytes([]byte{0x01})
		}

		return privKey
	})

	// PubKeyGen draws public keys.
	PubKeyGen = rapid.Custom(func(t *rapid.T) *btcec.PublicKey {
		return PrivKeyGen.Draw(t, "privkey").PubKey()
	})

	// ChainCodeGen draws 32-byte chain codes.
	ChainCodeGen = rapid.Custom(func(t *rapid.T) [32]byte {
		var chainCode [32]byte
		copy(chainCode[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(
			t, "chain_code",
		))

		return chainCode
	})

	// NonHardenedIndexGen draws non-hardened child indices.
	NonHardenedIndexGen = rapid.Uint32Range(0, 1<<31-1)

	// PathGen draws non-hardened paths of up to 6 elements.
	PathGen = rapid.SliceOfN(NonHardenedIndexGen, 0, 6)

	// HardenedIndexGen draws hardened child indices.
	HardenedIndexGen = rapid.Uint32Range(1<<31, 1<<32-1)
)
