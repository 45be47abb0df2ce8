package dynsel

import "sync/atomic"

// RunOnce returns a function that forwards to f on its first call only.
// Later calls do nothing and return the zero R.
//
// Unlike sync.OnceValue, later calls do not replay the first result, and a
// panic in f still counts as the one invocation.
func RunOnce[A, R any](f func(A) R) func(A) R {
	var invoked atomic.Bool
	return func(arg A) R {
		if !invoked.CompareAndSwap(false, true) {
			var zero R
			return zero
		}
		return f(arg)
	}
}

// RunOnceFunc is RunOnce for functions without arguments or results.
func RunOnceFunc(f func()) func() {
	var invoked atomic.Bool
	return func() {
		if !invoked.CompareAndSwap(false, true) {
			return
		}
		f()
	}
}
