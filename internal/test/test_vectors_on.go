//go:build gen_test_vectors

package test

import (
	"encoding/json"
	prand "math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	// rand is seeded with a static value so regenerated vectors stay
	// stable between runs.
	rand = prand.New(prand.NewSource(1))
)

// WriteTestVectors serializes target as indented JSON into the testdata
// directory of the calling package.
func WriteTestVectors(t testing.TB, fileName string, target any) {
	fileBytes, err := json.MarshalIndent(target, "", "  ")
	require.NoError(t, err)

	filePath := filepath.Join("testdata", fileName)
	require.NoError(t, os.WriteFile(filePath, fileBytes, 0644))
}
