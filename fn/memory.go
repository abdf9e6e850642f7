package fn

// ByteArray is a type constraint for types that reduce down to a 32-byte
// array.
type ByteArray interface {
	~[32]byte
}

// ByteSlice takes a byte array and returns a slice of it.
func ByteSlice[T ByteArray](v T) []byte {
	return v[:]
}

// ToArray copies a byte slice into a fixed size array. Missing bytes are left
// zero, extra bytes are ignored.
func ToArray[T ByteArray](v []byte) T {
	var arr T
	copy(arr[:], v)
	return arr
}

// CopySlice returns a shallow copy of the given slice. A nil slice stays nil.
func CopySlice[T any](slice []T) []T {
	if slice == nil {
		return nil
	}

	newSlice := make([]T, len(slice))
	copy(newSlice, slice)
	return newSlice
}
