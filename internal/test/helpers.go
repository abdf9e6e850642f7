package test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// RandBool rolls a random boolean.
func RandBool() bool {
	return rand.Int()%2 == 0
}

// RandPrivKey returns a fresh random private key.
func RandPrivKey(t testing.TB) *btcec.PrivateKey {
	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return privKey
}

// RandPubKey returns the public key of a fresh random private key.
func RandPubKey(t testing.TB) *btcec.PublicKey {
	return RandPrivKey(t).PubKey()
}

// RandPubKeys returns num random public keys.
func RandPubKeys(t testing.TB, num int) []*btcec.PublicKey {
	keys := make([]*btcec.PublicKey, num)
	for i := range keys {
		keys[i] = RandPubKey(t)
	}

	return keys
}

// RandCompressedKeys returns the compressed serialization of num random
// public keys.
func RandCompressedKeys(t testing.TB, num int) [][]byte {
	keys := make([][]byte, num)
	for i, key := range RandPubKeys(t, num) {
		keys[i] = key.SerializeCompressed()
	}

	return keys
}

// RandBytes returns num random bytes.
func RandBytes(num int) []byte {
	randBytes := make([]byte, num)
	_, _ = rand.Read(randBytes)
	return randBytes
}

// RandChainCode returns a random 32-byte chain code.
func RandChainCode() [32]byte {
	var chainCode [32]byte
	copy(chainCode[:], RandBytes(32))
	return chainCode
}

// RandPath returns a random non-hardened derivation path of the given
// length.
func RandPath(length int) []uint32 {
	path := make([]uint32, length)
	for i := range path {
		path[i] = uint32(rand.Int31())
	}

	return path
}
