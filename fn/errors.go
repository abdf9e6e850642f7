package fn

import "errors"

// ErrorAs behaves the same as `errors.As` except there's no need to declare
// the target error as a variable first.
//
//	fn.ErrorAs[*TargetErr](err)
func ErrorAs[Target error](err error) bool {
	var targetErr Target

	return errors.As(err, &targetErr)
}
