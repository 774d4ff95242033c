// Sentinel errors and the fatal-invariant abort hook.

package schedcore

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchProc is returned when a pid does not name a live process.
	ErrNoSuchProc = errors.New("schedcore: no such process")
	// ErrNotParent is returned by Wait when the caller has no children at
	// all, or has been killed.
	ErrNotParent = errors.New("schedcore: caller has no zombie children")
	// ErrBadAlgorithm is returned by ChangeSchedErr for an unrecognized
	// algorithm name (ChangeSched itself returns -2).
	ErrBadAlgorithm = errors.New("schedcore: unknown scheduling algorithm")
	// ErrBadSmoothingFactor is returned by ChangeSchedErr when `a` is
	// outside [0, 100] (ChangeSched itself returns -3).
	ErrBadSmoothingFactor = errors.New("schedcore: smoothing factor out of range")
)

// Abort is invoked on fatal invariant violations; the only one checked is
// Exit being called twice on the same process. It is a
// variable rather than a direct panic() call so that tests can substitute
// a collector and assert on the message instead of crashing the test
// binary.
var Abort func(format string, args ...any) = defaultAbort

func defaultAbort(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}
