package syncutil

import "sync"

// Barrier collapses a fixed number of asynchronous completions into a single
// callback invocation. Each participant calls Signal exactly once; the callback
// fires when the last participant arrives, carrying the first non-nil error
// observed across all signals. Signals received after the callback has fired
// are ignored, so a misbehaving participant cannot re-trigger completion.
type Barrier struct {
	mu       sync.Mutex
	required int
	arrived  int
	fired    bool
	err      error
	done     func(error)
}

// New constructs a Barrier expecting required signals before invoking done.
// When required is zero (or negative) there is nothing to wait for and done is
// invoked synchronously, exactly once, before New returns.
func New(required int, done func(error)) *Barrier {
	b := &Barrier{required: required, done: done}
	if required <= 0 {
		b.fired = true
		done(nil)
	}
	return b
}

// Signal records one completion. It is safe to call from any number of
// goroutines concurrently; the increment and threshold test are performed
// under a single lock so exactly one caller observes the final arrival.
func (b *Barrier) Signal(err error) {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		return
	}
	if err != nil && b.err == nil {
		b.err = err
	}
	b.arrived++
	if b.arrived < b.required {
		b.mu.Unlock()
		return
	}
	b.fired = true
	final := b.err
	b.mu.Unlock()
	b.done(final)
}
