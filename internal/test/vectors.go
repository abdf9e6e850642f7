package test

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ParseTestVectors reads the named JSON file from the testdata directory of
// the calling package into target.
func ParseTestVectors(t testing.TB, fileName string, target any) {
	t.Helper()

	fileBytes, err := os.ReadFile(filepath.Join("testdata", fileName))
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(fileBytes, target))
}

// ParseHex decodes a hex string or fails the test.
func ParseHex(t testing.TB, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}
