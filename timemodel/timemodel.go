// Package timemodel implements the three time representations spec.md §4.G
// names — monotonic tick count, RTC date/time/sub-second tuple, and Unix
// epoch milliseconds — plus the sub-second clock-slew primitive used when a
// time-sync message arrives from a peer. Grounded on
// _examples/original_source (the RTC HAL glue) for the sub-second slew
// contract; calendar conversion itself is built on the standard library's
// time.Time, which is the idiomatic Go mechanism every repo in the pack
// already relies on for timestamp handling (see DESIGN.md — no third-party
// library in the examples offers civil-calendar conversion).
package timemodel

import "time"

// SubSecondTicksPerSecond mirrors a typical 32.768 kHz RTC crystal, giving
// the RTC tuple sub-second resolution finer than the millisecond epoch
// representation (spec §4.G: "Conversions are total and lossless within
// the RTC's sub-second resolution").
const SubSecondTicksPerSecond = 32768

// RTC is the device real-time-clock date/time/sub-second tuple.
type RTC struct {
	Time   time.Time // whole-second UTC resolution
	SubSec uint32    // 0..SubSecondTicksPerSecond-1
}

// Clock ties the monotonic millisecond tick counter to wall-clock time via
// a calibrated epoch offset (spec §4.G: three representations, all
// convertible from one another).
type Clock struct {
	epochOffsetMs int64 // epochMs(now) = int64(nowMs) + epochOffsetMs
}

// NewClock calibrates a Clock so that EpochMs(nowMs) == epochMs.
func NewClock(nowMs uint32, epochMs int64) *Clock {
	return &Clock{epochOffsetMs: epochMs - int64(nowMs)}
}

// EpochMs converts the monotonic tick nowMs to milliseconds since the Unix
// epoch.
func (c *Clock) EpochMs(nowMs uint32) int64 {
	return int64(nowMs) + c.epochOffsetMs
}

// RTCAt converts the monotonic tick nowMs to the RTC date/time/sub-second
// tuple.
func (c *Clock) RTCAt(nowMs uint32) RTC {
	return EpochMsToRTC(c.EpochMs(nowMs))
}

// EpochMsToRTC converts epoch milliseconds to the RTC tuple.
func EpochMsToRTC(epochMs int64) RTC {
	sec := epochMs / 1000
	subMs := epochMs % 1000
	if subMs < 0 { // epochMs before 1970 would otherwise give a negative remainder
		subMs += 1000
		sec--
	}
	return RTC{
		Time:   time.Unix(sec, 0).UTC(),
		SubSec: uint32(subMs) * SubSecondTicksPerSecond / 1000,
	}
}

// RTCToEpochMs is the inverse of EpochMsToRTC (spec §8: "RTC → epoch → RTC
// is the identity modulo the sub-second quantum").
func RTCToEpochMs(r RTC) int64 {
	subMs := int64(r.SubSec) * 1000 / SubSecondTicksPerSecond
	return r.Time.Unix()*1000 + subMs
}

// slewStepMs is the largest adjustment Slew applies per call: one
// millisecond, the finest step the millisecond epoch offset can represent.
// That is about 33 ticks of the RTC tuple's 1/32768 s sub-second counter.
const slewStepMs = 1

// Slew nudges the epoch offset toward correcting by deltaMs, but clamps the
// single-call adjustment to slewStepMs, so one call moves wall-clock time by
// at most one millisecond; a step of a single sub-second tick is finer than
// the offset can hold. Callers that need to correct a larger error call Slew
// repeatedly across successive ticks.
func (c *Clock) Slew(deltaMs int64) {
	switch {
	case deltaMs > slewStepMs:
		deltaMs = slewStepMs
	case deltaMs < -slewStepMs:
		deltaMs = -slewStepMs
	}
	c.epochOffsetMs += deltaMs
}

// LastTxTimestamp is the "last transmission timestamp" field of the
// time-synchronization publication. Zero is the sentinel for an RTC read
// failure (spec §7: "RTC read failure — time-sync publication carries zero
// as the 'last transmission timestamp'; listeners are expected to ignore
// that sentinel").
type LastTxTimestamp uint64

const NoTimestamp LastTxTimestamp = 0
