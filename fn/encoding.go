package fn

import (
	"bytes"
	"io"
)

// Encoder is an interface that defines a method to encode data into an
// io.Writer.
type Encoder interface {
	// Encode writes the encoded data to the provided io.Writer.
	Encode(w io.Writer) error
}

// Encode encodes the given Encoder into a byte slice.
func Encode(e Encoder) ([]byte, error) {
	if e == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := e.Encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
