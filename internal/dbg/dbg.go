//go:build debug

// Package dbg provides zero-cost (outside debug builds) invariant checks.
// Adapted from the teacher's cmn/debug: same two-build-tag shape, trimmed
// to the assertions this runtime's invariants (I1-I5, P1-P9) actually need.
package dbg

import "fmt"

func ON() bool { return true }

func Assert(cond bool, v ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, v...)...))
	}
}

func Assertf(cond bool, format string, v ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, v...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
	}
}
