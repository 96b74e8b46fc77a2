// Package attitude implements the on-board attitude determination/control
// laws spec.md §4.I names: the B-dot detumbler, the LVLH nadir pointer, and
// the magnetorquer driver that turns either law's dipole command into
// hardware duty cycles. Grounded on
// _examples/original_source/Inc/TaskDetumbler.hpp and
// Inc/TaskMagnetorquer.hpp — the control laws themselves
// (MagneticBDotController, LVLHAttitudeTarget, MagnetorquerHardwareInterface)
// are referenced by those headers but not present in the retrieved source,
// so their algorithms are implemented directly from spec.md §4.I's prose
// description, in the teacher's small-struct, no-inheritance style.
package attitude

import "math"

// Vec3 is a 3-element vector used throughout for magnetic field (Tesla),
// angular velocity (rad/s), position (m), and velocity (m/s) quantities.
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v Vec3) Dot(o Vec3) float64 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }

func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// Clip clamps each axis of v to [-limit[i], +limit[i]] (spec §4.I: "clipped
// per axis to the magnetorquer's saturation dipole").
func (v Vec3) Clip(limit Vec3) Vec3 {
	out := v
	for i := range out {
		if out[i] > limit[i] {
			out[i] = limit[i]
		}
		if out[i] < -limit[i] {
			out[i] = -limit[i]
		}
	}
	return out
}

// Quaternion is a Hamilton w,x,y,z unit quaternion representing a body-frame
// attitude (spec §3: "quaternion q_body←NED").
type Quaternion struct {
	W, X, Y, Z float64
}

// Conjugate returns q's inverse rotation (q⁻¹ for a unit quaternion).
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Mul computes the Hamilton product q ⊗ o.
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return q
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Vector returns q's imaginary (vector) part, used as the small-angle error
// axis in the PD law (spec §4.I: "apply a PD law on (q_err, ω)").
func (q Quaternion) Vector() Vec3 { return Vec3{q.X, q.Y, q.Z} }

// FromAxisAngle builds the rotation quaternion around a unit axis by angle
// radians.
func FromAxisAngle(axis Vec3, angle float64) Quaternion {
	half := angle / 2
	s := math.Sin(half)
	a := axis.Normalize()
	return Quaternion{W: math.Cos(half), X: a[0] * s, Y: a[1] * s, Z: a[2] * s}
}
