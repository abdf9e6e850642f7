package fn

// Map applies the given mapping function to each element of the given slice
// and generates a new slice.
func Map[I, O any, S []I](s S, f func(I) O) []O {
	output := make([]O, len(s))
	for i, x := range s {
		output[i] = f(x)
	}

	return output
}

// MapErr is identical to Map, but returns early if any single mapping fails.
func MapErr[I, O any, S []I](s S, f func(I) (O, error)) ([]O, error) {
	output := make([]O, len(s))

	var err error
	for i, x := range s {
		output[i], err = f(x)
		if err != nil {
			return nil, err
		}
	}

	return output, nil
}

// Copyable is a generic interface for a type that's able to return a deep copy
// of itself.
type Copyable[T any] interface {
	Copy() T
}

// CopyAll creates a new slice where each item is a deep copy of the elements
// of the input slice.
func CopyAll[T Copyable[T]](xs []T) []T {
	if xs == nil {
		return nil
	}

	newItems := make([]T, len(xs))
	for i := range xs {
		newItems[i] = xs[i].Copy()
	}

	return newItems
}
