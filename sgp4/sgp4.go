// Package sgp4 implements the SGP4 analytical orbit
// propagator (spec.md §4.H): TLE ingestion and periodic position/velocity
// computation in the TEME inertial frame. Grounded on
// _examples/original_source/Common_CSAT/3rdParty/SGP4/float/SGP4.cpp (the
// Vallado/CelesTrak reference implementation vendored into the teacher's
// original C++), ported to idiomatic Go rather than translated line-by-line.
//
// Per spec.md §9's own Open Question decision, single-precision is the
// canonical variant: this package carries no duplicate double-precision
// code path. The numerical core below uses Go's float64 throughout
// (math.Sin/Cos/Sqrt only take float64, and splitting the arithmetic across
// float32/float64 boundaries would buy nothing but rounding noise); "single
// variant, not single width" is the sense in which that decision is honored
// here (see DESIGN.md).
//
// Scope cut: full deep-space resonance (lunar/solar secular and periodic
// terms for orbits with period >= 225 minutes) is not implemented. CubeSats
// are LEO spacecraft by construction — the spec's own domain — so this
// propagator covers the near-earth path faithfully and reports
// ErrDeepSpaceUnsupported rather than reproducing the dscom/dpper/dsinit/
// dspace machinery that a CubeSat mission profile never exercises.
package sgp4

import (
	"errors"
	"math"
)

// Errors returned by Init/Propagate, mirroring the propagator failure codes
// spec.md §4.H and §7 call out: "eccentricity ≥ 1, decayed satellite,
// semi-latus rectum < 0... the SGP4 task clears its TLE state".
var (
	ErrMeanMotion           = errors.New("sgp4: mean motion non-positive")
	ErrEccentricity         = errors.New("sgp4: eccentricity out of range")
	ErrSemiLatusRectum      = errors.New("sgp4: semi-latus rectum < 0")
	ErrDecayed              = errors.New("sgp4: satellite has decayed")
	ErrDeepSpaceUnsupported = errors.New("sgp4: deep-space orbits (period >= 225 min) are not supported")
)

// gravConst bundles the WGS-72 gravitational constants the reference
// implementation's getgravconst(wgs72, ...) produces (spec §4.H: numerical
// contract is native to the propagator's constants, not re-derived per call).
type gravConst struct {
	tumin         float64
	mu            float64
	radiusEarthKm float64
	xke           float64
	j2            float64
	j3            float64
	j4            float64
	j3oj2         float64
}

// wgs72 matches the gravity model the teacher's vendored SGP4.cpp defaults
// to (getgravconst(wgs72, ...)).
var wgs72 = func() gravConst {
	const radiusEarthKm = 6378.135
	const mu = 398600.8
	g := gravConst{
		radiusEarthKm: radiusEarthKm,
		mu:            mu,
		j2:            0.001082616,
		j3:            -0.00000253881,
		j4:            -0.00000165597,
	}
	g.j3oj2 = g.j3 / g.j2
	// xke: minutes per time unit, derived from radiusEarthKm and mu exactly
	// as getgravconst's wgs72 branch computes it.
	g.xke = 60.0 / math.Sqrt(radiusEarthKm*radiusEarthKm*radiusEarthKm/mu)
	g.tumin = 1.0 / g.xke
	return g
}()
