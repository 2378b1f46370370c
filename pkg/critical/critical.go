// Package critical models the host scheduler's critical-section primitives
// as an injectable capability.
//
// On the target system these are process-wide calls that disable preemption
// (task context) or save and restore the interrupt mask (interrupt context).
// Representing them as an interface keeps the buffer core testable without
// the real scheduler: production code injects PreemptLock, tests can inject
// an instrumented Section.
package critical

import "sync"

// SavedState is the opaque token returned by the interrupt-context enter.
// It must be passed back to the matching ExitFromISR call; the pairing
// mirrors a saved interrupt mask that is restored, not unconditionally
// re-enabled, on exit.
type SavedState uint32

// Section is a critical-section provider. Enter/Exit are the task-context
// pair; EnterFromISR/ExitFromISR are the interrupt-context pair and are the
// only ones legal from an interrupt handler.
type Section interface {
	Enter()
	Exit()
	EnterFromISR() SavedState
	ExitFromISR(state SavedState)
}

// PreemptLock is the default Section. A single mutex stands in for the
// scheduler's preemption-disable: on a single core, holding it means no
// other party can run the enclosed copy-then-publish sequence.
type PreemptLock struct {
	mu  sync.Mutex
	seq uint32
}

func NewPreemptLock() *PreemptLock {
	return &PreemptLock{}
}

func (l *PreemptLock) Enter() {
	l.mu.Lock()
}

func (l *PreemptLock) Exit() {
	l.mu.Unlock()
}

// EnterFromISR acquires the section and hands out a fresh state token.
// seq is only touched while the mutex is held.
func (l *PreemptLock) EnterFromISR() SavedState {
	l.mu.Lock()
	l.seq++
	return SavedState(l.seq)
}

func (l *PreemptLock) ExitFromISR(state SavedState) {
	_ = state
	l.mu.Unlock()
}
