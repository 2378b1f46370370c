package critical

import "sync/atomic"

// TraceSection wraps another Section and records how it is used. Tests use
// it to check that every operation actually runs under the section and that
// interrupt-context exits get the token their enter produced.
type TraceSection struct {
	Inner Section

	enters      atomic.Int64
	exits       atomic.Int64
	isrEnters   atomic.Int64
	isrExits    atomic.Int64
	badTokens   atomic.Int64
	outstanding SavedState // valid only while the section is held by an ISR enter
}

func NewTraceSection(inner Section) *TraceSection {
	return &TraceSection{Inner: inner}
}

func (t *TraceSection) Enter() {
	t.Inner.Enter()
	t.enters.Add(1)
}

func (t *TraceSection) Exit() {
	t.exits.Add(1)
	t.Inner.Exit()
}

func (t *TraceSection) EnterFromISR() SavedState {
	state := t.Inner.EnterFromISR()
	t.isrEnters.Add(1)
	t.outstanding = state
	return state
}

func (t *TraceSection) ExitFromISR(state SavedState) {
	if state != t.outstanding {
		t.badTokens.Add(1)
	}
	t.isrExits.Add(1)
	t.Inner.ExitFromISR(state)
}

func (t *TraceSection) Enters() int64    { return t.enters.Load() }
func (t *TraceSection) Exits() int64     { return t.exits.Load() }
func (t *TraceSection) ISREnters() int64 { return t.isrEnters.Load() }
func (t *TraceSection) ISRExits() int64  { return t.isrExits.Load() }

// BadTokens counts ExitFromISR calls whose token did not match the most
// recent EnterFromISR.
func (t *TraceSection) BadTokens() int64 { return t.badTokens.Load() }
