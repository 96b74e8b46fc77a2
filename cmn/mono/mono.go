// Package mono provides the monotonic millisecond tick the scheduler and
// every Task gate on (spec §4.C, §4.G), mirroring aistore's cmn/mono
// package (mono.NanoTime/mono.Since used in ais/prxs3.go and xact/xs/tcb.go)
// but scoped to the board's millisecond HAL tick rather than a nanosecond
// wall clock.
package mono

import "sync/atomic"

// Clock is the sole source of "now" for the scheduler. On real hardware it
// is driven by the RTC/timer ISR (spec §5, interrupt class iii); in
// cmd/simsat and tests it is driven by an explicit Advance call.
type Clock struct {
	ms atomic.Uint32
}

// NewClock constructs a Clock starting at the given boot tick.
func NewClock(startMs uint32) *Clock {
	c := &Clock{}
	c.ms.Store(startMs)
	return c
}

// Now returns the current monotonic millisecond count since boot.
func (c *Clock) Now() uint32 { return c.ms.Load() }

// Advance moves the clock forward by deltaMs, as the RTC/timer ISR does in
// hardware (spec §5: "RTC/timer ticks... only increment the monotonic
// counter").
func (c *Clock) Advance(deltaMs uint32) uint32 { return c.ms.Add(deltaMs) }

// Set pins the clock to an absolute tick, used by tests to reproduce a
// specific scenario (e.g. "Set now = 10,240 ms", spec §8 scenario 1).
func (c *Clock) Set(ms uint32) { c.ms.Store(ms) }
