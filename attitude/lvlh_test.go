package attitude

import (
	"math"
	"testing"
)

func TestLVLHPointerInvalidBeforeFirstUpdate(t *testing.T) {
	p := NewLVLHPointer(LVLHConfig{Kp: Vec3{1, 1, 1}, Kd: Vec3{1, 1, 1}, SaturationDipole: Vec3{1, 1, 1}})
	if p.Valid() {
		t.Fatalf("pointer valid before any position solution ingested")
	}
	if _, ok := p.ComputeDipole(Quaternion{W: 1}, Vec3{}, Vec3{1e-4, 2e-4, 3e-4}); ok {
		t.Fatalf("ComputeDipole succeeded before UpdateDesired")
	}
}

func TestLVLHPointerValidAfterUpdate(t *testing.T) {
	p := NewLVLHPointer(LVLHConfig{Kp: Vec3{1, 1, 1}, Kd: Vec3{1, 1, 1}, SaturationDipole: Vec3{1, 1, 1}})
	p.UpdateDesired(Vec3{7000e3, 0, 0}, Vec3{0, 7500, 0})
	if !p.Valid() {
		t.Fatalf("pointer not valid after UpdateDesired")
	}
}

// TestLVLHDipoleSign reproduces spec.md's seed scenario: with q_desired
// marked valid and equal to the identity (the position/velocity pair below
// puts the LVLH axes on the inertial axes), q_body a 90-degree rotation about body X,
// angular rate and magnetic field collinear along (1,2,3), the commanded
// dipole's X-axis component vanishes identically while Y and Z do not.
func TestLVLHDipoleSign(t *testing.T) {
	p := NewLVLHPointer(LVLHConfig{
		Kp:               Vec3{0.05, 0.05, 0.05},
		Kd:               Vec3{0.01, 0.01, 0.01},
		SaturationDipole: Vec3{1, 1, 1},
	})
	p.UpdateDesired(Vec3{0, 0, -7000e3}, Vec3{7500, 0, 0}) // marks valid; desired = identity for this pair

	half := math.Sqrt2 / 2
	qBody := Quaternion{W: half, X: half, Y: 0, Z: 0}
	omega := Vec3{0.01, 0.02, 0.03}
	bBody := Vec3{1e-4, 2e-4, 3e-4}

	dipole, ok := p.ComputeDipole(qBody, omega, bBody)
	if !ok {
		t.Fatalf("ComputeDipole reported invalid after a position solution was ingested")
	}
	if math.Abs(dipole[0]) > 1e-12 {
		t.Fatalf("X-axis dipole = %v, want 0 (omega and B collinear along Y/Z)", dipole[0])
	}
	if dipole[1] == 0 || dipole[2] == 0 {
		t.Fatalf("dipole = %v, want non-zero Y and Z axes", dipole)
	}
}

func TestDriverEnablesAllAxesEvenWithZeroDipole(t *testing.T) {
	d := NewDriver(DriverConfig{SaturationDipole: Vec3{1, 1, 1}, DutyScale: Vec3{100, 100, 100}})
	out := d.Apply(Vec3{0, 5e-3, -5e-3})
	for i, axis := range out {
		if !axis.Enable {
			t.Fatalf("axis %d not enabled, want enable driven low on every axis", i)
		}
	}
	if out[0].DutyPct != 0 {
		t.Fatalf("axis 0 duty = %v, want 0 for a zero dipole component", out[0].DutyPct)
	}
	if !out[1].Polarity {
		t.Fatalf("axis 1 polarity = false, want true for a positive dipole")
	}
	if out[2].Polarity {
		t.Fatalf("axis 2 polarity = true, want false for a negative dipole")
	}
}
