// Package tasks implements the housekeeping task set spec.md §4.J names:
// heartbeat, port-list advertisement, time-sync, LED blink, the heap
// invariant check, and the GetInfo request/response pair (the last folded
// in as a supplemented feature, see DESIGN.md / SPEC_FULL.md §4). Grounded
// on the teacher's task headers under _examples/original_source/Inc
// (TaskSendHeartBeat.hpp, TaskSendNodePortList.hpp,
// TaskSendTimeSynchronization.hpp, TaskRequestGetInfo.hpp,
// TaskRespondGetInfo.hpp) and Common_CSAT/Src (TaskBlinkLED.cpp,
// TaskCheckMemory.cpp).
//
// These tasks serialize their own small wire records with cmn/cos's
// big-endian packing helpers rather than a generated Cyphal DSDL codec:
// spec.md §1 scopes "the autogenerated Cyphal data-type (de)serializers"
// out as an external collaborator with "stated interfaces only", so this
// package supplies a minimal stand-in with the same shape (fixed-layout,
// versioned-by-port) rather than vendoring or hand-writing a DSDL compiler.
package tasks

import (
	"github.com/cubesat-core/flightsw/cyphal"
)

// Fixed port ids. spec.md §6 names several public regulated Cyphal ports
// by role ("Heartbeat, GetInfo, port/List, time/Synchronization,
// diagnostic/Record, register/Access, file/List") without giving every
// numeric value; these match the real Cyphal public regulated data type
// fixed port id register. (§8 scenario 1's literal "port_id = 32085" falls
// outside the valid port space spec.md §3 itself defines ([1,8191]); we
// treat that as the scenario's own inconsistency and use the standard
// Heartbeat fixed port instead — see DESIGN.md.)
const (
	PortHeartbeat       cyphal.PortID = 7509
	PortGetInfo         cyphal.PortID = 430
	PortPortList        cyphal.PortID = 7510
	PortTimeSync        cyphal.PortID = 7168
	PortDiagnosticRecord cyphal.PortID = 8184
	PortRegisterAccess  cyphal.PortID = 384
)

// Health and Mode mirror uavcan.node.Health/Mode's enumerants (spec §8
// scenario 1: "health = NOMINAL, mode = OPERATIONAL").
type Health uint8

const (
	HealthNominal Health = iota
	HealthAdvisory
	HealthCaution
	HealthWarning
)

type Mode uint8

const (
	ModeOperational Mode = iota
	ModeInitialization
	ModeMaintenance
	ModeSoftwareUpdate
)
