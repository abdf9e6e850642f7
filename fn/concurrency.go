package fn

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParMap applies f to each element of a slice in parallel, with the number
// of active goroutines limited to the number of CPUs. It blocks until all
// goroutines succeed or the first one fails, in which case the context passed
// to the others is canceled and that first error is returned. The results are
// returned in the order of the input slice.
func ParMap[I, O any](ctx context.Context, s []I,
	f func(context.Context, I) (O, error)) ([]O, error) {

	results := make([]O, len(s))

	errGroup, ctx := errgroup.WithContext(ctx)
	errGroup.SetLimit(runtime.NumCPU())

	for i, v := range s {
		errGroup.Go(func() error {
			result, err := f(ctx, v)
			if err != nil {
				return err
			}

			results[i] = result
			return nil
		})
	}

	if err := errGroup.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
