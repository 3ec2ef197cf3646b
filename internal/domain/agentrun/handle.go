// Package agentrun holds the one piece of state genuinely shared across
// an Agent Loop and any research sub-tasks it spawns: the cooperative
// abort flag. Per §9's design note, this is a field of an explicit value
// rather than a free-standing package-level static, so tests can construct
// a fresh one per run instead of reaching through global state.
package agentrun

import "sync/atomic"

// Handle carries the process-scoped cooperative-cancellation flag. The Go
// port uses atomic.Bool rather than an unsynchronized flag because,
// unlike the single-threaded event loop this system was designed for, the
// Research Orchestrator's sub-tasks are real goroutines that poll it
// concurrently with whatever goroutine calls Abort.
type Handle struct {
	aborted atomic.Bool
}

// New returns a fresh, not-yet-aborted handle.
func New() *Handle {
	return &Handle{}
}

// Abort sets the flag. Idempotent — calling it twice has the same effect
// as calling it once.
func (h *Handle) Abort() {
	h.aborted.Store(true)
}

// Aborted reports whether Abort has been called. Checked at the top of
// each Agent Loop step and before each tool execution.
func (h *Handle) Aborted() bool {
	return h.aborted.Load()
}
