package sgp4

import (
	"time"

	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/timemodel"
	"github.com/cubesat-core/flightsw/xreg"
)

// PortTLEUpload and PortPositionVelocity are the scheduler ports the
// propagator task consumes/produces (spec §4.H: "TLE ingestion... periodic
// position/velocity publication"). No fixed numeric port is given in
// spec.md; chosen in the same vendor-regulated range as the attitude
// solution ports (see attitude/task.go) since both are _4111Spyglass
// internal data types rather than public Cyphal types.
const (
	PortTLEUpload        cyphal.PortID = 20110
	PortPositionVelocity cyphal.PortID = 20111
)

// PositionVelocityPayloadSize is {position[3]f64, velocity[3]f64} TEME
// metres and metres/second, big-endian packed.
const PositionVelocityPayloadSize = 3*8 + 3*8

// Task drives the propagator on a fixed schedule, holding either "no TLE"
// or "propagating" state (spec §4.H: "State machine: no-TLE ↔ propagating").
// A newly ingested TLE always replaces any in-flight one ("latest wins");
// a propagation failure clears state back to no-TLE (spec §7).
type Task struct {
	sched.Base
	sched.Publisher

	clock    *timemodel.Clock
	tleInbox *sched.Inbox

	epoch *time.Time
	sat   *Satellite
}

var _ sched.Task = (*Task)(nil)

// NewTask constructs the propagator task. clock supplies the epoch-ms
// conversion used for each tick's minutes-since-epoch computation (spec
// §4.H), the same clock every other task in tasks/ reads wall time from.
func NewTask(clock *timemodel.Clock, intervalMs, shiftMs uint32, tleInboxCapacity int, adapters []cyphal.CommonAdapter) *Task {
	return &Task{
		Base:      sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		Publisher: sched.Publisher{Adapters: adapters},
		clock:     clock,
		tleInbox:  sched.NewInbox(tleInboxCapacity),
	}
}

func (*Task) Name() string { return "sgp4.Task" }

func (t *Task) RegisterTask(m *xreg.Manager) {
	m.Subscribe(t, PortTLEUpload, t.tleInbox.Push)
	m.Publish(t, PortPositionVelocity)
}
func (t *Task) UnregisterTask(*xreg.Manager) {}

// HandleTask ingests any newly uploaded TLE (replacing prior state), then
// propagates and publishes if a TLE is loaded.
func (t *Task) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(now uint32) { t.tick(now) })
}

func (t *Task) tick(nowMs uint32) {
	t.ingestTLE()
	if t.sat == nil {
		return
	}
	t.propagateAndPublish(nowMs)
}

func (t *Task) ingestTLE() {
	for {
		tr, ok := t.tleInbox.Pop()
		if !ok {
			return
		}
		payload := tr.Get().Payload
		tr.Release()
		line1, line2, ok := decodeTLEUpload(payload)
		if !ok {
			nlog.Errorf("sgp4: Task: malformed TLE upload payload")
			continue
		}
		el, err := ParseTLE(line1, line2)
		if err != nil {
			nlog.Errorf("sgp4: Task: parsing TLE: %v", err)
			continue
		}
		sat, err := Init(el)
		if err != nil {
			nlog.Errorf("sgp4: Task: initializing propagator: %v", err)
			continue
		}
		epoch := el.EpochTime()
		t.epoch = &epoch
		t.sat = sat
		nlog.Infof("sgp4: Task: loaded TLE for catalog %s, epoch %s", el.CatalogNumber, epoch)
	}
}

func (t *Task) propagateAndPublish(nowMs uint32) {
	now := time.UnixMilli(t.clock.EpochMs(nowMs)).UTC()
	tsinceMin := now.Sub(*t.epoch).Minutes()
	pos, vel, err := t.sat.Propagate(tsinceMin)
	if err != nil {
		nlog.Errorf("sgp4: Task: propagation failed, clearing TLE state: %v", err)
		t.sat, t.epoch = nil, nil
		return
	}
	var payload [PositionVelocityPayloadSize]byte
	for i := 0; i < 3; i++ {
		cos.PutF64BE(payload[i*8:], pos[i])
	}
	for i := 0; i < 3; i++ {
		cos.PutF64BE(payload[24+i*8:], vel[i])
	}
	if _, err := t.Publish(PortPositionVelocity, cyphal.PriorityNominal, payload[:]); err != nil {
		nlog.Errorf("sgp4: Task: publishing position/velocity failed: %v", err)
	}
}

// decodeTLEUpload splits a TLE-upload payload into its two fixed-width
// (69-byte, newline-free) lines, mirroring the two-line wire convention
// spec §4.H describes for TLE ingestion.
func decodeTLEUpload(payload []byte) (line1, line2 string, ok bool) {
	const lineLen = 69
	if len(payload) < 2*lineLen {
		return "", "", false
	}
	return string(payload[:lineLen]), string(payload[lineLen : 2*lineLen]), true
}
