package record

import (
	"bytes"
	"fmt"
	"io"
)

// ChecksumFlag locates the checksum bit in the flag field of an inner
// record.
type ChecksumFlag struct {
	// Offset is the byte offset of the flag field in the inner record.
	Offset int

	// Bit is the number of the checksum bit within the flag field.
	Bit uint
}

// pos returns the index of the byte holding the checksum bit and the mask
// of the bit.
func (f ChecksumFlag) pos() (int, byte) {
	return f.Offset + int(f.Bit/8), 1 << (f.Bit % 8)
}

// IsSet returns true if the inner record announces a trailing checksum.
func (f ChecksumFlag) IsSet(inner []byte) bool {
	i, mask := f.pos()
	return i < len(inner) && inner[i]&mask != 0
}

// restore returns a copy of the inner record with the checksum bit set.
func (f ChecksumFlag) restore(inner []byte) []byte {
	i, mask := f.pos()

	restored := bytes.Clone(inner)
	if i < len(restored) {
		restored[i] |= mask
	}

	return restored
}

// WriteRecord writes the outer wrapper of a record: the inner blob as a
// length-prefixed field, followed by its checksum if withChecksum is set.
func WriteRecord(w io.Writer, inner []byte, withChecksum bool,
	cs Checksummer) error {

	if err := WriteVarBytes(w, inner); err != nil {
		return err
	}
	if !withChecksum {
		return nil
	}

	sum := cs.Compute(inner)
	_, err := w.Write(sum[:])
	return err
}

// ReadRecord reads the outer wrapper written by WriteRecord. The hasChecksum
// closure inspects the inner blob's own flags to tell whether a checksum
// follows. The returned blob is the verified, possibly repaired, inner
// record.
func ReadRecord(r io.Reader, hasChecksum func(inner []byte) bool,
	cs Checksummer) ([]byte, error) {

	inner, err := ReadVarBytes(r, "inner record")
	if err != nil {
		return nil, err
	}
	if !hasChecksum(inner) {
		return inner, nil
	}

	var sum Checksum
	if err := ReadFixed(r, sum[:], "checksum"); err != nil {
		return nil, err
	}

	inner, err = cs.VerifyAndCorrect(inner, sum)
	if err != nil {
		return nil, fmt.Errorf("unable to verify record: %w", err)
	}

	return inner, nil
}

// ParseRecord reads a complete outer record from b. Since the end of the
// record is known, a cleared checksum flag followed by exactly ChecksumSize
// bytes is treated as corruption of the flag: the record is verified with
// the flag set again and fails with ErrChecksum if that doesn't match.
func ParseRecord(b []byte, flag ChecksumFlag, cs Checksummer) ([]byte,
	error) {

	r := bytes.NewReader(b)
	inner, err := ReadRecord(r, flag.IsSet, cs)
	if err != nil {
		return nil, err
	}

	switch {
	case r.Len() == 0:
		return inner, nil

	case r.Len() != ChecksumSize || flag.IsSet(inner):
		return nil, fmt.Errorf("%w: %d trailing bytes after record",
			ErrFormat, r.Len())
	}

	var sum Checksum
	copy(sum[:], b[len(b)-ChecksumSize:])

	inner, err = cs.VerifyAndCorrect(flag.restore(inner), sum)
	if err != nil {
		return nil, fmt.Errorf("checksum flag cleared, unable to "+
			"verify record: %w", err)
	}

	log.Warnf("Restored cleared checksum flag of %d byte record",
		len(inner))

	return inner, nil
}
