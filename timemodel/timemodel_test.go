package timemodel

import "testing"

func TestEpochRTCRoundTrip(t *testing.T) {
	const epochMs = 1750873200123 // 2025-06-25T18:00:00.123Z
	rtc := EpochMsToRTC(epochMs)
	back := RTCToEpochMs(rtc)

	diff := epochMs - back
	if diff < 0 {
		diff = -diff
	}
	quantumMs := int64(1000 / SubSecondTicksPerSecond)
	if quantumMs < 1 {
		quantumMs = 1
	}
	if diff > quantumMs {
		t.Fatalf("round trip off by %dms, want <= %dms (sub-second quantum)", diff, quantumMs)
	}
}

func TestClockEpochConversion(t *testing.T) {
	c := NewClock(1000, 5000)
	if got := c.EpochMs(1000); got != 5000 {
		t.Fatalf("EpochMs(1000) = %d, want 5000", got)
	}
	if got := c.EpochMs(2500); got != 6500 {
		t.Fatalf("EpochMs(2500) = %d, want 6500", got)
	}
}

func TestSlewClampsToOneQuantum(t *testing.T) {
	c := NewClock(0, 0)
	c.Slew(500) // large correction requested
	if got := c.EpochMs(0); got != slewStepMs {
		t.Fatalf("single Slew call moved epoch by %dms, want %dms (clamped)", got, slewStepMs)
	}
	// repeated small steps converge without ever overshooting per call.
	for i := 0; i < 10; i++ {
		c.Slew(500)
	}
	if got := c.EpochMs(0); got != slewStepMs*11 {
		t.Fatalf("after 11 slew calls, epoch = %d, want %d", got, slewStepMs*11)
	}
}
