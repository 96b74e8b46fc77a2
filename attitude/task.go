package attitude

import (
	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"
)

// Fixed ports for the estimator's solution messages. spec.md §4.I names
// these by role ("orientation solution", "position/velocity solution")
// without a numeric port id; the retrieved source's
// _4111spyglass_sat_solution_{Orientation,Position}Solution_0_1_PORT_ID_
// constants aren't in the retrieved set either, so these are chosen in the
// vendor-specific regulated range the rest of _4111Spyglass's fixed ports
// occupy, distinct from the public-regulated housekeeping ports in
// tasks.go.
const (
	PortOrientationSolution cyphal.PortID = 20100
	PortPositionSolution    cyphal.PortID = 20101
)

// OrientationSolutionSize is {magnetic_field_body[3]f32, angular_velocity_ned[3]f32,
// quaternion_ned[4]f32, timestamp_usec u64} big-endian packed.
const OrientationSolutionSize = 3*4 + 3*4 + 4*4 + 8

// PositionSolutionSize is {position_ecef[3]f64, velocity_ecef[3]f64}
// big-endian packed.
const PositionSolutionSize = 3*8 + 3*8

// OrientationSolution mirrors the estimator's published state (spec §3:
// "attitude state").
type OrientationSolution struct {
	MagneticFieldBody Vec3
	AngularVelocity   Vec3
	QuaternionNED     Quaternion
	TimestampUsec     uint64
}

func decodeOrientationSolution(p []byte) (OrientationSolution, bool) {
	var s OrientationSolution
	if len(p) < OrientationSolutionSize {
		return s, false
	}
	for i := 0; i < 3; i++ {
		s.MagneticFieldBody[i] = float64(cos.GetF32BE(p[i*4:]))
	}
	off := 12
	for i := 0; i < 3; i++ {
		s.AngularVelocity[i] = float64(cos.GetF32BE(p[off+i*4:]))
	}
	off += 12
	s.QuaternionNED = Quaternion{
		W: float64(cos.GetF32BE(p[off:])),
		X: float64(cos.GetF32BE(p[off+4:])),
		Y: float64(cos.GetF32BE(p[off+8:])),
		Z: float64(cos.GetF32BE(p[off+12:])),
	}
	off += 16
	s.TimestampUsec = cos.GetU64BE(p[off:])
	return s, true
}

// PositionSolution mirrors the estimator's orbital state in ECEF (spec §4.I:
// "on receipt of a position/velocity solution").
type PositionSolution struct {
	PositionECEF Vec3
	VelocityECEF Vec3
}

func decodePositionSolution(p []byte) (PositionSolution, bool) {
	var s PositionSolution
	if len(p) < PositionSolutionSize {
		return s, false
	}
	for i := 0; i < 3; i++ {
		s.PositionECEF[i] = cos.GetF64BE(p[i*8:])
	}
	for i := 0; i < 3; i++ {
		s.VelocityECEF[i] = cos.GetF64BE(p[24+i*8:])
	}
	return s, true
}

// DetumblerTask is the scheduler task wrapper around the B-dot control law:
// every orientation solution drives a dipole command to the magnetorquer
// driver (spec §4.I, grounded on TaskDetumbler.hpp).
type DetumblerTask struct {
	sched.Base
	inbox  *sched.Inbox
	law    *Detumbler
	driver *Driver
}

var _ sched.Task = (*DetumblerTask)(nil)

func NewDetumblerTask(law *Detumbler, driver *Driver, intervalMs, shiftMs uint32, inboxCapacity int) *DetumblerTask {
	return &DetumblerTask{
		Base:   sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		inbox:  sched.NewInbox(inboxCapacity),
		law:    law,
		driver: driver,
	}
}

func (*DetumblerTask) Name() string { return "attitude.Detumbler" }
func (t *DetumblerTask) RegisterTask(m *xreg.Manager) {
	m.Subscribe(t, PortOrientationSolution, t.inbox.Push)
}
func (t *DetumblerTask) UnregisterTask(*xreg.Manager) {}

func (t *DetumblerTask) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.drain() })
}

func (t *DetumblerTask) drain() {
	for {
		tr, ok := t.inbox.Pop()
		if !ok {
			return
		}
		m := tr.Get()
		sol, ok := decodeOrientationSolution(m.Payload)
		remote := m.Metadata.RemoteNodeID
		tr.Release()
		if !ok {
			nlog.Errorf("attitude: Detumbler: malformed OrientationSolution payload")
			continue
		}
		nlog.Debugf("attitude: Detumbler %d", remote)
		dipole := t.law.Apply(sol.MagneticFieldBody, uint32(sol.TimestampUsec/1000))
		t.driver.Apply(dipole)
	}
}

// MagnetorquerTask mirrors TaskMagnetorquer.hpp: it ingests both orientation
// and position/velocity solutions, uses the latter to keep the LVLH
// pointer's desired attitude current, and drives the magnetorquer from the
// former (spec §4.I).
type MagnetorquerTask struct {
	sched.Base
	inbox   *sched.Inbox
	pointer *LVLHPointer
	driver  *Driver
}

var _ sched.Task = (*MagnetorquerTask)(nil)

func NewMagnetorquerTask(pointer *LVLHPointer, driver *Driver, intervalMs, shiftMs uint32, inboxCapacity int) *MagnetorquerTask {
	return &MagnetorquerTask{
		Base:    sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		inbox:   sched.NewInbox(inboxCapacity),
		pointer: pointer,
		driver:  driver,
	}
}

func (*MagnetorquerTask) Name() string { return "attitude.Magnetorquer" }
func (t *MagnetorquerTask) RegisterTask(m *xreg.Manager) {
	m.Subscribe(t, PortOrientationSolution, t.inbox.Push)
	m.Subscribe(t, PortPositionSolution, t.inbox.Push)
}
func (t *MagnetorquerTask) UnregisterTask(*xreg.Manager) {}

func (t *MagnetorquerTask) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.drain() })
}

func (t *MagnetorquerTask) drain() {
	for {
		tr, ok := t.inbox.Pop()
		if !ok {
			return
		}
		m := tr.Get()
		switch m.Metadata.PortID {
		case PortOrientationSolution:
			t.applyMagnetorquer(m.Payload)
		case PortPositionSolution:
			t.updateDesired(m.Payload)
		}
		tr.Release()
	}
}

func (t *MagnetorquerTask) applyMagnetorquer(payload []byte) {
	if !t.pointer.Valid() {
		return
	}
	sol, ok := decodeOrientationSolution(payload)
	if !ok {
		nlog.Errorf("attitude: Magnetorquer: malformed OrientationSolution payload")
		return
	}
	dipole, ok := t.pointer.ComputeDipole(sol.QuaternionNED, sol.AngularVelocity, sol.MagneticFieldBody)
	if !ok {
		return
	}
	t.driver.Apply(dipole)
}

func (t *MagnetorquerTask) updateDesired(payload []byte) {
	sol, ok := decodePositionSolution(payload)
	if !ok {
		nlog.Errorf("attitude: Magnetorquer: malformed PositionSolution payload")
		return
	}
	t.pointer.UpdateDesired(sol.PositionECEF, sol.VelocityECEF)
	nlog.Infof("attitude: Magnetorquer: updated q_desired")
}
