//go:build !gen_test_vectors

package test

import (
	prand "math/rand"
	"testing"
	"time"
)

var (
	// rand is a pseudo random generator seeded with the current time, as
	// test runs don't need to be reproducible unless vectors are written.
	rand = prand.New(prand.NewSource(time.Now().Unix()))
)

// WriteTestVectors is a no-op unless the gen_test_vectors build tag is set.
func WriteTestVectors(t testing.TB, fileName string, target any) {
}
