package cscript

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/btcid/record"
)

const (
	// EscapeByte introduces a slot marker in a script template. The byte
	// that follows it is the number of keys inserted at the slot, where
	// zero stands for a literal 0xff byte.
	EscapeByte byte = 0xff
)

// Slot is an escape sequence found in a template.
type Slot struct {
	// Offset is the position of the escape byte in the template.
	Offset int

	// Size is the number of keys inserted at the slot. A slot of size
	// zero is a literal escape byte.
	Size uint8
}

// IsLiteral returns true if the slot stands for a literal escape byte.
func (s Slot) IsLiteral() bool {
	return s.Size == 0
}

// ParseTemplate returns the slots of a template in template order. A double
// escape or a dangling escape at the end of the template is rejected.
func ParseTemplate(template []byte) ([]Slot, error) {
	var slots []Slot
	for i := 0; i < len(template); i++ {
		if template[i] != EscapeByte {
			continue
		}

		if i+1 == len(template) {
			return nil, fmt.Errorf("%w: dangling escape byte at end "+
				"of template", record.ErrTemplate)
		}

		size := template[i+1]
		if size == EscapeByte {
			return nil, fmt.Errorf("%w: double escape at offset %d",
				record.ErrTemplate, i)
		}

		slots = append(slots, Slot{
			Offset: i,
			Size:   size,
		})
		i++
	}

	return slots, nil
}

// EscapeFF escapes raw script bytes for use in a template: every 0xff byte
// is followed by a zero byte.
func EscapeFF(b []byte) []byte {
	escaped := make([]byte, 0, len(b)+bytes.Count(b, []byte{EscapeByte}))
	for _, c := range b {
		escaped = append(escaped, c)
		if c == EscapeByte {
			escaped = append(escaped, 0x00)
		}
	}

	return escaped
}

// UnescapeFF reverses EscapeFF. Templates with key slots can't be unescaped.
func UnescapeFF(b []byte) ([]byte, error) {
	unescaped := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		unescaped = append(unescaped, b[i])
		if b[i] != EscapeByte {
			continue
		}

		if i+1 == len(b) || b[i+1] != 0x00 {
			return nil, fmt.Errorf("%w: escape byte at offset %d is "+
				"not a literal", record.ErrTemplate, i)
		}
		i++
	}

	return unescaped, nil
}

// DisasmTemplate renders a template in a human readable form. Key slots are
// shown as <N key(s)>.
func DisasmTemplate(template []byte) (string, error) {
	slots, err := ParseTemplate(template)
	if err != nil {
		return "", err
	}

	var (
		parts []string
		start int
	)
	addLiteral := func(end int) {
		if end <= start {
			return
		}

		// Segments of well formed templates only contain whole
		// opcodes. Anything else is shown with the error marker of
		// the disassembler.
		disasm, _ := txscript.DisasmString(template[start:end])
		parts = append(parts, disasm)
	}

	for _, slot := range slots {
		addLiteral(slot.Offset)
		start = slot.Offset + 2

		switch {
		case slot.IsLiteral():
			parts = append(parts, "OP_INVALIDOPCODE")

		case slot.Size == 1:
			parts = append(parts, "<1 key>")

		default:
			parts = append(parts, fmt.Sprintf("<%d keys>", slot.Size))
		}
	}
	addLiteral(len(template))

	return strings.Join(parts, " "), nil
}
