package capability

import "sync"

// TestEnv holds the test-mode flag. When enabled, the planner relaxes
// constraints that only make sense in production, such as rejecting
// non-parallelizable plans when mt_dop > 0.
//
// The flag may only be changed through WithTestMode. Readers take a snapshot
// with Enabled; a snapshot never observes a value set by another caller's
// WithTestMode while that scope is active.
type TestEnv struct {
	mu      sync.RWMutex
	enabled bool
}

// Default is the process-wide test environment. It starts enabled.
var Default = NewTestEnv(true)

// NewTestEnv returns a TestEnv with the flag set to enabled.
func NewTestEnv(enabled bool) *TestEnv {
	return &TestEnv{enabled: enabled}
}

// Enabled returns the current flag value. It blocks while another goroutine
// is inside WithTestMode.
func (e *TestEnv) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// WithTestMode sets the flag to enabled, runs fn, and restores the previous
// value before returning. The previous value is restored on every exit path,
// including a panic or runtime.Goexit in fn; panics propagate after restore.
//
// The lock is held for the whole call, so fn must not call Enabled or
// WithTestMode on the same TestEnv; pass the mode to collaborators instead.
func (e *TestEnv) WithTestMode(enabled bool, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.enabled
	e.enabled = enabled
	defer func() { e.enabled = prev }()

	return fn()
}
