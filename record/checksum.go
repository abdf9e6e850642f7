package record

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// ChecksumSize is the size of the checksum appended to checksummed
	// records.
	ChecksumSize = 4

	// MaxRepairSize is the largest record Hash256Checksummer tries to
	// repair. Repair hashes the record once per candidate byte, so larger
	// records are only verified.
	MaxRepairSize = 1024
)

// Checksum is the trailing checksum of a record.
type Checksum [ChecksumSize]byte

// Checksummer computes record checksums and verifies them, possibly
// repairing small amounts of corruption along the way.
type Checksummer interface {
	// Compute returns the checksum of data.
	Compute(data []byte) Checksum

	// VerifyAndCorrect checks data against sum. It returns the data,
	// which may be a repaired copy of the input, or an error wrapping
	// ErrChecksum if the data can't be verified.
	VerifyAndCorrect(data []byte, sum Checksum) ([]byte, error)
}

// Hash256Checksummer uses the first four bytes of the double SHA-256 of the
// data as checksum. Unless NoCorrection is set, a single corrupted byte of a
// record of at most MaxRepairSize bytes is repaired by trying every possible
// substitution.
type Hash256Checksummer struct {
	// NoCorrection disables single byte repair.
	NoCorrection bool
}

// DefaultChecksummer is the checksummer used when none is specified.
var DefaultChecksummer Checksummer = &Hash256Checksummer{}

// Compute returns the first four bytes of hash256(data).
//
// NOTE: This is part of the Checksummer interface.
func (h *Hash256Checksummer) Compute(data []byte) Checksum {
	var sum Checksum
	copy(sum[:], chainhash.DoubleHashB(data))
	return sum
}

// VerifyAndCorrect returns data if it matches sum. Otherwise a copy with at
// most one byte substituted that matches sum is returned.
//
// NOTE: This is part of the Checksummer interface.
func (h *Hash256Checksummer) VerifyAndCorrect(data []byte,
	sum Checksum) ([]byte, error) {

	if h.Compute(data) == sum {
		return data, nil
	}

	if h.NoCorrection {
		return nil, fmt.Errorf("%w: computed %x, expected %x",
			ErrChecksum, h.Compute(data), sum[:])
	}

	if len(data) > MaxRepairSize {
		return nil, fmt.Errorf("%w: %d byte record exceeds repair "+
			"limit of %d bytes", ErrChecksum, len(data),
			MaxRepairSize)
	}

	fixed := bytes.Clone(data)
	for i := range fixed {
		orig := fixed[i]
		for v := 0; v < 256; v++ {
			if byte(v) == orig {
				continue
			}

			fixed[i] = byte(v)
			if h.Compute(fixed) == sum {
				log.Warnf("Repaired corrupted byte at offset "+
					"%d of %d byte record", i, len(fixed))

				return fixed, nil
			}
		}
		fixed[i] = orig
	}

	return nil, fmt.Errorf("%w: unable to correct %d byte record",
		ErrChecksum, len(data))
}

// A compile-time assertion to ensure Hash256Checksummer meets the
// Checksummer interface.
var _ Checksummer = (*Hash256Checksummer)(nil)
