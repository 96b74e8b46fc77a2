package attitude

import "math"

// LVLHConfig holds the PD pointing gains and the shared saturation dipole
// (spec §4.I: "apply a PD law on (q_err, ω)... clip per axis").
type LVLHConfig struct {
	Kp, Kd         Vec3
	SaturationDipole Vec3
}

// LVLHPointer computes a nadir-pointing attitude target from orbital
// position/velocity and drives a dipole command toward it using the
// current orientation estimate (spec §4.I, grounded on
// TaskMagnetorquer.hpp's getQDesired/applyMagneTorquer pair).
type LVLHPointer struct {
	cfg LVLHConfig

	qDesired Quaternion
	valid    bool
}

func NewLVLHPointer(cfg LVLHConfig) *LVLHPointer {
	return &LVLHPointer{cfg: cfg}
}

// Valid reports whether at least one position/velocity solution has been
// ingested (spec §3: "q_desired is marked invalid until at least one
// position solution has been ingested").
func (p *LVLHPointer) Valid() bool { return p.valid }

// UpdateDesired computes and stores the desired body-to-NED quaternion that
// aligns body +Z with nadir and body +X with the orbital velocity projected
// onto the local horizontal plane (spec §4.I).
func (p *LVLHPointer) UpdateDesired(posECEF, velECEF Vec3) {
	p.qDesired = DesiredAttitudeFromECEF(posECEF, velECEF)
	p.valid = true
}

// DesiredAttitudeFromECEF builds the LVLH-aligned quaternion: nadir
// (-position, normalized) as the body Z axis, the component of velocity
// orthogonal to nadir as the body X axis, completing a right-handed frame
// with Y = Z × X.
func DesiredAttitudeFromECEF(posECEF, velECEF Vec3) Quaternion {
	zAxis := posECEF.Scale(-1).Normalize()
	xAxis := velECEF.Sub(zAxis.Scale(velECEF.Dot(zAxis))).Normalize()
	yAxis := zAxis.Cross(xAxis)
	return rotationFromBasis(xAxis, yAxis, zAxis)
}

// rotationFromBasis converts an orthonormal body-axis basis (expressed in
// the reference frame) to the quaternion that rotates the reference frame
// onto it, via the standard trace-based direction-cosine-matrix conversion.
func rotationFromBasis(x, y, z Vec3) Quaternion {
	m := [3][3]float64{
		{x[0], y[0], z[0]},
		{x[1], y[1], z[1]},
		{x[2], y[2], z[2]},
	}
	trace := m[0][0] + m[1][1] + m[2][2]
	var q Quaternion
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1.0)
		q = Quaternion{
			W: 0.25 / s,
			X: (m[2][1] - m[1][2]) * s,
			Y: (m[0][2] - m[2][0]) * s,
			Z: (m[1][0] - m[0][1]) * s,
		}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2.0 * math.Sqrt(1.0+m[0][0]-m[1][1]-m[2][2])
		q = Quaternion{
			W: (m[2][1] - m[1][2]) / s,
			X: 0.25 * s,
			Y: (m[0][1] + m[1][0]) / s,
			Z: (m[0][2] + m[2][0]) / s,
		}
	case m[1][1] > m[2][2]:
		s := 2.0 * math.Sqrt(1.0+m[1][1]-m[0][0]-m[2][2])
		q = Quaternion{
			W: (m[0][2] - m[2][0]) / s,
			X: (m[0][1] + m[1][0]) / s,
			Y: 0.25 * s,
			Z: (m[1][2] + m[2][1]) / s,
		}
	default:
		s := 2.0 * math.Sqrt(1.0+m[2][2]-m[0][0]-m[1][1])
		q = Quaternion{
			W: (m[1][0] - m[0][1]) / s,
			X: (m[0][2] + m[2][0]) / s,
			Y: (m[1][2] + m[2][1]) / s,
			Z: 0.25 * s,
		}
	}
	return q.Normalize()
}

// ComputeDipole implements the pointing control law: the quaternion error
// q_err = q_desired ⊗ q_body⁻¹, a PD torque command on (q_err, ω), crossed
// with B_body since only magnetic actuation is available (spec §4.I).
// Returns false if no position solution has been ingested yet.
func (p *LVLHPointer) ComputeDipole(qBody Quaternion, omega, bBody Vec3) (Vec3, bool) {
	if !p.valid {
		return Vec3{}, false
	}
	qErr := p.qDesired.Mul(qBody.Conjugate()).Normalize()
	if qErr.W < 0 {
		// shortest-path correction: -q and q represent the same attitude,
		// but the vector part's sign flips the torque direction.
		qErr = Quaternion{W: -qErr.W, X: -qErr.X, Y: -qErr.Y, Z: -qErr.Z}
	}
	torque := Vec3{
		p.cfg.Kp[0]*qErr.X - p.cfg.Kd[0]*omega[0],
		p.cfg.Kp[1]*qErr.Y - p.cfg.Kd[1]*omega[1],
		p.cfg.Kp[2]*qErr.Z - p.cfg.Kd[2]*omega[2],
	}
	bNormSq := bBody.Dot(bBody)
	if bNormSq == 0 {
		return Vec3{}, true
	}
	dipole := bBody.Cross(torque).Scale(1 / bNormSq)
	return dipole.Clip(p.cfg.SaturationDipole), true
}
