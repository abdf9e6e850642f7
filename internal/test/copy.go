package test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightninglabs/btcid/fn"
	"github.com/pmezard/go-difflib/difflib"
)

// AssertCopyEqual checks that the Copy method of the given value returns a
// deeply equal value that doesn't share any slice or pointer with the
// original, unexported fields included.
func AssertCopyEqual[T fn.Copyable[T]](t *testing.T, original T) {
	t.Helper()

	copied := original.Copy()
	if !reflect.DeepEqual(original, copied) {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(spew.Sdump(original)),
			B:        difflib.SplitLines(spew.Sdump(copied)),
			FromFile: "Original",
			ToFile:   "Copied",
			Context:  3,
		})

		t.Fatalf("copy is not deeply equal to the original:\n%v", diff)
	}

	AssertNoAliasing(t, original, copied)
}

// AssertNoAliasing walks two values of the same type and fails the test if
// any non-empty slice or pointer reachable from both refers to the same
// memory.
func AssertNoAliasing(t *testing.T, a, b any) {
	t.Helper()

	checkAliasing(
		t, reflect.ValueOf(a), reflect.ValueOf(b),
		reflect.TypeOf(a).String(),
	)
}

func checkAliasing(t *testing.T, v1, v2 reflect.Value, path string) {
	t.Helper()

	if !v1.IsValid() || !v2.IsValid() {
		return
	}

	switch v1.Kind() {
	case reflect.Ptr:
		if v1.IsNil() || v2.IsNil() {
			return
		}

		if v1.Pointer() == v2.Pointer() {
			t.Fatalf("aliasing detected at %s (shared pointer)", path)
		}

		checkAliasing(t, v1.Elem(), v2.Elem(), path)

	case reflect.Slice:
		if v1.Len() == 0 || v2.Len() == 0 {
			return
		}

		if v1.Pointer() == v2.Pointer() {
			t.Fatalf("aliasing detected at %s (shared slice)", path)
		}

		for i := 0; i < v1.Len() && i < v2.Len(); i++ {
			checkAliasing(
				t, v1.Index(i), v2.Index(i),
				fmt.Sprintf("%s[%d]", path, i),
			)
		}

	case reflect.Interface:
		checkAliasing(t, v1.Elem(), v2.Elem(), path)

	case reflect.Struct:
		for i := range v1.NumField() {
			checkAliasing(
				t, v1.Field(i), v2.Field(i),
				path+"."+v1.Type().Field(i).Name,
			)
		}

	default:
	}
}
