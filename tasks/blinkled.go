package tasks

import (
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"
)

// GPIOPin abstracts the single pin TaskBlinkLED toggles (spec §4.J
// supplement, grounded on TaskBlinkLED.cpp/.hpp). The host simulation
// backs this with an in-memory bool; a board bring-up would back it with
// the MCU's HAL.
type GPIOPin interface {
	Toggle()
}

// BlinkLED toggles a status LED at a fixed cadence, registered as a bare
// handler per the original's PURE_HANDLER subscription since it consumes
// no transfers.
type BlinkLED struct {
	sched.Base
	sched.BareHandler
	pin GPIOPin
}

var _ sched.Task = (*BlinkLED)(nil)

func NewBlinkLED(pin GPIOPin, intervalMs, shiftMs uint32) *BlinkLED {
	return &BlinkLED{
		Base: sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		pin:  pin,
	}
}

func (*BlinkLED) Name() string { return "tasks.BlinkLED" }
func (t *BlinkLED) RegisterTask(m *xreg.Manager) {
	t.BareHandler.Register(m, t, func(tr *cyphal.RxTransfer) { tr.Release() })
}
func (t *BlinkLED) UnregisterTask(*xreg.Manager) {}

func (t *BlinkLED) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.pin.Toggle() })
}
