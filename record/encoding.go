package record

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
)

const (
	// pver is the protocol version handed to the wire helpers. The
	// CompactSize and var bytes encodings don't depend on it.
	pver = 0

	// MaxFieldSize is the largest length-prefixed field we'll decode. This
	// prevents a malicious length prefix from making us allocate huge
	// buffers.
	MaxFieldSize = 1 << 20
)

// WriteVarInt writes val as a Bitcoin CompactSize integer.
func WriteVarInt(w io.Writer, val uint64) error {
	return wire.WriteVarInt(w, pver, val)
}

// ReadVarInt reads a Bitcoin CompactSize integer.
func ReadVarInt(r io.Reader) (uint64, error) {
	val, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return 0, fmt.Errorf("%w: unable to read var int: %v",
			ErrFormat, err)
	}

	return val, nil
}

// ReadCount reads a CompactSize element count and makes sure it doesn't
// exceed maxCount.
func ReadCount(r io.Reader, maxCount uint64, fieldName string) (uint64,
	error) {

	count, err := ReadVarInt(r)
	if err != nil {
		return 0, err
	}
	if count > maxCount {
		return 0, fmt.Errorf("%w: %s count %d exceeds maximum of %d",
			ErrFormat, fieldName, count, maxCount)
	}

	return count, nil
}

// WriteVarBytes writes a length-prefixed field.
func WriteVarBytes(w io.Writer, b []byte) error {
	return wire.WriteVarBytes(w, pver, b)
}

// ReadVarBytes reads a length-prefixed field of at most MaxFieldSize bytes.
func ReadVarBytes(r io.Reader, fieldName string) ([]byte, error) {
	b, err := wire.ReadVarBytes(r, pver, MaxFieldSize, fieldName)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read %s: %v", ErrFormat,
			fieldName, err)
	}

	return b, nil
}

// VarBytesSize returns the serialized size of a length-prefixed field of n
// bytes.
func VarBytesSize(n int) uint64 {
	return uint64(wire.VarIntSerializeSize(uint64(n))) + uint64(n)
}

// WriteUint8 writes a single byte.
func WriteUint8(w io.Writer, val uint8) error {
	_, err := w.Write([]byte{val})
	return err
}

// ReadUint8 reads a single byte.
func ReadUint8(r io.Reader, fieldName string) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: unable to read %s: %v", ErrFormat,
			fieldName, err)
	}

	return b[0], nil
}

// WriteUint16 writes a little-endian 16-bit integer.
func WriteUint16(w io.Writer, val uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], val)
	_, err := w.Write(b[:])
	return err
}

// ReadUint16 reads a little-endian 16-bit integer.
func ReadUint16(r io.Reader, fieldName string) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: unable to read %s: %v", ErrFormat,
			fieldName, err)
	}

	return binary.LittleEndian.Uint16(b[:]), nil
}

// ReadFixed reads exactly len(b) bytes into b.
func ReadFixed(r io.Reader, b []byte, fieldName string) error {
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("%w: unable to read %s: %v", ErrFormat,
			fieldName, err)
	}

	return nil
}

// Flags is a little bit field of up to 16 flags. Records encode either the
// low byte or both bytes of it.
type Flags uint16

// Get returns the value of the given bit.
func (f Flags) Get(bit uint) bool {
	return f&(1<<bit) != 0
}

// Set sets the given bit to val.
func (f *Flags) Set(bit uint, val bool) {
	if val {
		*f |= 1 << bit
		return
	}

	*f &^= 1 << bit
}

// WriteFlags8 writes the low byte of the flag field.
func WriteFlags8(w io.Writer, f Flags) error {
	return WriteUint8(w, uint8(f))
}

// ReadFlags8 reads a single byte flag field.
func ReadFlags8(r io.Reader) (Flags, error) {
	b, err := ReadUint8(r, "flags")
	return Flags(b), err
}

// WriteFlags16 writes the two byte flag field.
func WriteFlags16(w io.Writer, f Flags) error {
	return WriteUint16(w, uint16(f))
}

// ReadFlags16 reads a two byte flag field.
func ReadFlags16(r io.Reader) (Flags, error) {
	v, err := ReadUint16(r, "flags")
	return Flags(v), err
}
