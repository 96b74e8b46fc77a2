// Package cmn holds the boot configuration shared across every entry
// point, loaded from JSON rather than hand-parsed flags (spec.md's
// Ambient Stack: "A cmn.Config struct... loaded from JSON via jsoniter").
package cmn

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// TaskConfig is the common interval/shift/inbox triple nearly every
// scheduler task in tasks/, attitude/, and sgp4/ takes as constructor
// arguments.
type TaskConfig struct {
	IntervalMs    uint32 `json:"interval_ms"`
	ShiftMs       uint32 `json:"shift_ms"`
	InboxCapacity int    `json:"inbox_capacity"`
}

// AdapterConfig names one transport adapter's node identity. Only the
// fields relevant to a given transport are populated by the simulation's
// config file; the others stay at their zero value. NodeID is a plain
// uint32 here (rather than cyphal.NodeID) so this package doesn't need to
// import cyphal; callers convert with cyphal.NodeID(cfg.NodeID).
type AdapterConfig struct {
	Enabled bool   `json:"enabled"`
	NodeID  uint32 `json:"node_id"`
}

// AttitudeConfig carries the B-dot and LVLH control-law gains (spec
// §4.I: "The gain and saturation are configuration constants").
type AttitudeConfig struct {
	BDotGain             float64    `json:"bdot_gain"`
	SaturationDipole     [3]float64 `json:"saturation_dipole"`
	LVLHKp               [3]float64 `json:"lvlh_kp"`
	LVLHKd               [3]float64 `json:"lvlh_kd"`
	DutyScale            [3]float64 `json:"duty_scale"`
}

// Config is the top-level boot configuration for cmd/simsat: allocator
// sizing, transport node identities, and every housekeeping/domain task's
// schedule.
type Config struct {
	AllocatorCapacityBytes int `json:"allocator_capacity_bytes"`

	NodeID uint32 `json:"node_id"`

	Loopback AdapterConfig `json:"loopback"`
	CAN      AdapterConfig `json:"can"`
	Serial   AdapterConfig `json:"serial"`
	UDP      AdapterConfig `json:"udp"`

	Heartbeat         TaskConfig `json:"heartbeat"`
	ProcessHeartbeat  TaskConfig `json:"process_heartbeat"`
	PortList          TaskConfig `json:"port_list"`
	SubscribePortList TaskConfig `json:"subscribe_port_list"`
	TimeSync          TaskConfig `json:"time_sync"`
	ProcessTimeSync   TaskConfig `json:"process_time_sync"`
	GetInfoClient     TaskConfig `json:"get_info_client"`
	GetInfoServer     TaskConfig `json:"get_info_server"`
	BlinkLED          TaskConfig `json:"blink_led"`
	CheckMemory       TaskConfig `json:"check_memory"`
	RegisterAccess    TaskConfig `json:"register_access"`
	Detumbler         TaskConfig `json:"detumbler"`
	Magnetorquer      TaskConfig `json:"magnetorquer"`
	SGP4              TaskConfig `json:"sgp4"`

	Attitude AttitudeConfig `json:"attitude"`

	GetInfoServerNodeID uint32 `json:"get_info_server_node_id"`

	RTCEpochMs int64 `json:"rtc_epoch_ms"`
}

// LoadConfig reads and decodes a Config from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cmn: reading config %q", path)
	}
	var cfg Config
	if err := jsoniter.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cmn: parsing config %q", path)
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration the host simulation boots with
// absent an explicit config file, sized for a single-node loopback-only
// bench run.
func DefaultConfig() *Config {
	return &Config{
		AllocatorCapacityBytes: 1 << 20,
		NodeID:                 10,

		Loopback: AdapterConfig{Enabled: true, NodeID: 10},

		Heartbeat:         TaskConfig{IntervalMs: 1000, InboxCapacity: 8},
		ProcessHeartbeat:  TaskConfig{IntervalMs: 100, InboxCapacity: 16},
		PortList:          TaskConfig{IntervalMs: 5000, InboxCapacity: 8},
		SubscribePortList: TaskConfig{IntervalMs: 100, InboxCapacity: 16},
		TimeSync:          TaskConfig{IntervalMs: 1000, InboxCapacity: 8},
		ProcessTimeSync:   TaskConfig{IntervalMs: 100, InboxCapacity: 16},
		GetInfoClient:     TaskConfig{IntervalMs: 2000, InboxCapacity: 4},
		GetInfoServer:     TaskConfig{IntervalMs: 100, InboxCapacity: 4},
		BlinkLED:          TaskConfig{IntervalMs: 500},
		CheckMemory:       TaskConfig{IntervalMs: 5000},
		RegisterAccess:    TaskConfig{IntervalMs: 100, InboxCapacity: 8},
		Detumbler:         TaskConfig{IntervalMs: 200, InboxCapacity: 8},
		Magnetorquer:      TaskConfig{IntervalMs: 200, InboxCapacity: 8},
		SGP4:              TaskConfig{IntervalMs: 1000, InboxCapacity: 4},

		Attitude: AttitudeConfig{
			BDotGain:         1e4,
			SaturationDipole: [3]float64{0.2, 0.2, 0.2},
			LVLHKp:           [3]float64{0.05, 0.05, 0.05},
			LVLHKd:           [3]float64{0.01, 0.01, 0.01},
			DutyScale:        [3]float64{500, 500, 500},
		},

		GetInfoServerNodeID: 10,
		RTCEpochMs:          0,
	}
}
