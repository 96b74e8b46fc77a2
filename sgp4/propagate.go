package sgp4

import "math"

// Satellite is the propagator's derived internal state (spec §3: "Derived
// internal state (≈100 floats) is opaque"). It is built once by Init from
// an Elements set and then reused across successive Propagate calls.
type Satellite struct {
	grav gravConst

	bstar  float64
	ecco   float64
	argpo  float64
	inclo  float64
	mo     float64
	nodeo  float64
	noKoz  float64 // kozai mean motion, rad/min
	noUnk  float64 // un-kozai'd mean motion, rad/min

	// Derived secular/periodic coefficients (sgp4init, near-earth branch).
	cc1, cc4, cc5       float64
	mdot, argpdot, nodedot float64
	omgcof, xmcof, nodecf  float64
	t2cof                  float64
	xlcof, aycof           float64
	delmo, sinmao          float64
	x1mth2, x7thm1         float64
	d2, d3, d4             float64
	t3cof, t4cof, t5cof    float64
	eta                    float64
	con41                  float64
	isimp                  bool

	// IsDeepSpace reports whether the element set's period exceeds the
	// near-earth/deep-space threshold (225 min); Propagate refuses these
	// (see package doc: deep-space scope cut).
	IsDeepSpace bool
}

// Init builds propagator state from el, equivalent to the reference's
// sgp4init (spec §4.H: "On first TLE: parse, initialise propagator state").
func Init(el *Elements) (*Satellite, error) {
	s := &Satellite{grav: wgs72}

	s.bstar = el.BStar
	s.ecco = el.Eccentricity
	s.inclo = el.Inclination * deg2rad
	s.nodeo = el.RAAN * deg2rad
	s.argpo = el.ArgPerigee * deg2rad
	s.mo = el.MeanAnomaly * deg2rad
	// Mean motion arrives in rev/day; convert to rad/min.
	s.noKoz = el.MeanMotion * twoPi / minutesPerDay

	if s.noKoz <= 0 {
		return nil, ErrMeanMotion
	}

	g := s.grav
	const x2o3 = 2.0 / 3.0

	eccsq := s.ecco * s.ecco
	omeosq := 1.0 - eccsq
	rteosq := math.Sqrt(omeosq)
	cosio := math.Cos(s.inclo)
	cosio2 := cosio * cosio

	ak := math.Pow(g.xke/s.noKoz, x2o3)
	d1 := 0.75 * g.j2 * (3.0*cosio2 - 1.0) / (rteosq * omeosq)
	del := d1 / (ak * ak)
	adel := ak * (1.0 - del*del - del*(1.0/3.0+134.0*del*del/81.0))
	del = d1 / (adel * adel)
	s.noUnk = s.noKoz / (1.0 + del)

	ao := math.Pow(g.xke/s.noUnk, x2o3)
	sinio := math.Sin(s.inclo)
	po := ao * omeosq
	con42 := 1.0 - 5.0*cosio2
	s.con41 = -con42 - cosio2 - cosio2
	posq := po * po
	rp := ao * (1.0 - s.ecco)

	// Period check: spec §9 canonicalizes single-precision near-earth;
	// period >= 225 min routes to the unimplemented deep-space branch.
	periodMin := twoPi / s.noUnk
	if periodMin >= 225.0 {
		s.IsDeepSpace = true
		return s, nil
	}

	s.isimp = rp < (220.0/g.radiusEarthKm + 1.0)

	ss := 78.0/g.radiusEarthKm + 1.0
	qzms2t := math.Pow((120.0-78.0)/g.radiusEarthKm, 4.0)
	sfour := ss
	qzms24 := qzms2t
	perige := (rp - 1.0) * g.radiusEarthKm
	if perige < 156.0 {
		sfour = perige - 78.0
		if perige < 98.0 {
			sfour = 20.0
		}
		qzms24 = math.Pow((120.0-sfour)/g.radiusEarthKm, 4.0)
		sfour = sfour/g.radiusEarthKm + 1.0
	}
	pinvsq := 1.0 / posq

	tsi := 1.0 / (ao - sfour)
	s.eta = ao * s.ecco * tsi
	etasq := s.eta * s.eta
	eeta := s.ecco * s.eta
	psisq := math.Abs(1.0 - etasq)
	coef := qzms24 * math.Pow(tsi, 4.0)
	coef1 := coef / math.Pow(psisq, 3.5)
	cc2 := coef1 * s.noUnk * (ao*(1.0+1.5*etasq+eeta*(4.0+etasq)) +
		0.375*g.j2*tsi/psisq*s.con41*(8.0+3.0*etasq*(8.0+etasq)))
	s.cc1 = s.bstar * cc2
	cc3 := 0.0
	if s.ecco > 1.0e-4 {
		cc3 = -2.0 * coef * tsi * g.j3oj2 * s.noUnk * sinio / s.ecco
	}
	s.x1mth2 = 1.0 - cosio2
	s.cc4 = 2.0 * s.noUnk * coef1 * ao * omeosq * (s.eta*(2.0+0.5*etasq) + s.ecco*(0.5+2.0*etasq) -
		g.j2*tsi/(ao*psisq)*(-3.0*s.con41*(1.0-2.0*eeta+etasq*(1.5-0.5*eeta))+
			0.75*s.x1mth2*(2.0*etasq-eeta*(1.0+etasq))*math.Cos(2.0*s.argpo)))
	s.cc5 = 2.0 * coef1 * ao * omeosq * (1.0 + 2.75*(etasq+eeta) + eeta*etasq)

	cosio4 := cosio2 * cosio2
	temp1 := 1.5 * g.j2 * pinvsq * s.noUnk
	temp2 := 0.5 * temp1 * g.j2 * pinvsq
	temp3 := -0.46875 * g.j4 * pinvsq * pinvsq * s.noUnk
	s.mdot = s.noUnk + 0.5*temp1*rteosq*s.con41 + 0.0625*temp2*rteosq*(13.0-78.0*cosio2+137.0*cosio4)
	s.argpdot = -0.5*temp1*con42 + 0.0625*temp2*(7.0-114.0*cosio2+395.0*cosio4) + temp3*(3.0-36.0*cosio2+49.0*cosio4)
	xhdot1 := -temp1 * cosio
	s.nodedot = xhdot1 + (0.5*temp2*(4.0-19.0*cosio2)+2.0*temp3*(3.0-7.0*cosio2))*cosio
	s.omgcof = s.bstar * cc3 * math.Cos(s.argpo)
	s.xmcof = 0.0
	if s.ecco > 1.0e-4 {
		s.xmcof = -x2o3 * coef * s.bstar / eeta
	}
	s.nodecf = 3.5 * omeosq * xhdot1 * s.cc1
	s.t2cof = 1.5 * s.cc1
	if math.Abs(cosio+1.0) > 1.5e-12 {
		s.xlcof = -0.25 * g.j3oj2 * sinio * (3.0 + 5.0*cosio) / (1.0 + cosio)
	} else {
		s.xlcof = -0.25 * g.j3oj2 * sinio * (3.0 + 5.0*cosio) / 1.5e-12
	}
	s.aycof = -0.5 * g.j3oj2 * sinio
	s.delmo = math.Pow(1.0+s.eta*math.Cos(s.mo), 3)
	s.sinmao = math.Sin(s.mo)
	s.x7thm1 = 7.0*cosio2 - 1.0

	if !s.isimp {
		cc1sq := s.cc1 * s.cc1
		s.d2 = 4.0 * ao * tsi * cc1sq
		temp := s.d2 * tsi * s.cc1 / 3.0
		s.d3 = (17.0*ao + sfour) * temp
		s.d4 = 0.5 * temp * ao * tsi * (221.0*ao + 31.0*sfour) * s.cc1
		s.t3cof = s.d2 + 2.0*cc1sq
		s.t4cof = 0.25 * (3.0*s.d3 + s.cc1*(12.0*s.d2+10.0*cc1sq))
		s.t5cof = 0.2 * (3.0*s.d4 + 12.0*s.cc1*s.d3 + 6.0*s.d2*s.d2 + 15.0*cc1sq*(2.0*s.d2+cc1sq))
	}

	return s, nil
}

// Propagate computes TEME position (metres) and velocity (metres/second) at
// tsinceMin minutes after the TLE epoch (spec §4.H: "compute
// minutes_since_epoch... call the propagator"). Errors mirror spec §7's
// propagator failure taxonomy.
func (s *Satellite) Propagate(tsinceMin float64) (pos, vel [3]float64, err error) {
	if s.IsDeepSpace {
		return pos, vel, ErrDeepSpaceUnsupported
	}
	g := s.grav
	t := tsinceMin

	xmdf := s.mo + s.mdot*t
	argpdf := s.argpo + s.argpdot*t
	nodedf := s.nodeo + s.nodedot*t
	argpm := argpdf
	mm := xmdf
	t2 := t * t
	nodem := nodedf + s.nodecf*t2
	tempa := 1.0 - s.cc1*t
	tempe := s.bstar * s.cc4 * t
	templ := s.t2cof * t2

	if !s.isimp {
		delomg := s.omgcof * t
		delmtemp := 1.0 + s.eta*math.Cos(xmdf)
		delm := s.xmcof * (delmtemp*delmtemp*delmtemp - s.delmo)
		temp := delomg + delm
		mm = xmdf + temp
		argpm = argpdf - temp
		t3 := t2 * t
		t4 := t3 * t
		tempa = tempa - s.d2*t2 - s.d3*t3 - s.d4*t4
		tempe = tempe + s.bstar*s.cc5*(math.Sin(mm)-s.sinmao)
		templ = templ + s.t3cof*t3 + t4*(s.t4cof+t*s.t5cof)
	}

	nm := s.noUnk
	em := s.ecco
	inclm := s.inclo

	if nm <= 0.0 {
		return pos, vel, ErrMeanMotion
	}

	am := math.Pow(g.xke/nm, 2.0/3.0) * tempa * tempa
	nm = g.xke / math.Pow(am, 1.5)
	em = em - tempe

	if em >= 1.0 || em < -0.001 {
		return pos, vel, ErrEccentricity
	}
	if em < 1.0e-6 {
		em = 1.0e-6
	}

	mm = mm + s.noUnk*templ
	xlm := mm + argpm + nodem
	emsq := em * em
	temp := 1.0 - emsq

	nodem = math.Mod(nodem, twoPi)
	if nodem < 0 {
		nodem += twoPi
	}
	argpm = math.Mod(argpm, twoPi)
	xlm = math.Mod(xlm, twoPi)
	mm = math.Mod(xlm-argpm-nodem, twoPi)

	sinim := math.Sin(inclm)
	cosim := math.Cos(inclm)

	axnl := em * math.Cos(argpm)
	temp = 1.0 / (am * temp)
	aynl := em*math.Sin(argpm) + temp*s.aycof
	xl := mm + argpm + nodem + temp*s.xlcof*axnl

	u := math.Mod(xl-nodem, twoPi)
	eo1 := u
	var sineo1, coseo1 float64
	tem5 := 9999.9
	for ktr := 1; math.Abs(tem5) >= 1.0e-12 && ktr <= 10; ktr++ {
		sineo1 = math.Sin(eo1)
		coseo1 = math.Cos(eo1)
		tem5 = 1.0 - coseo1*axnl - sineo1*aynl
		tem5 = (u - aynl*coseo1 + axnl*sineo1 - eo1) / tem5
		if math.Abs(tem5) >= 0.95 {
			if tem5 > 0 {
				tem5 = 0.95
			} else {
				tem5 = -0.95
			}
		}
		eo1 += tem5
	}

	ecose := axnl*coseo1 + aynl*sineo1
	esine := axnl*sineo1 - aynl*coseo1
	el2 := axnl*axnl + aynl*aynl
	pl := am * (1.0 - el2)
	if pl < 0 {
		return pos, vel, ErrSemiLatusRectum
	}
	rl := am * (1.0 - ecose)
	rdotl := math.Sqrt(am) * esine / rl
	rvdotl := math.Sqrt(pl) / rl
	betal := math.Sqrt(1.0 - el2)
	temp = esine / (1.0 + betal)
	sinu := am / rl * (sineo1 - aynl - axnl*temp)
	cosu := am / rl * (coseo1 - axnl + aynl*temp)
	su := math.Atan2(sinu, cosu)
	sin2u := (cosu + cosu) * sinu
	cos2u := 1.0 - 2.0*sinu*sinu
	temp = 1.0 / pl
	temp1 := 0.5 * g.j2 * temp
	temp2 := temp1 * temp

	mrt := rl*(1.0-1.5*temp2*betal*s.con41) + 0.5*temp1*s.x1mth2*cos2u
	su = su - 0.25*temp2*s.x7thm1*sin2u
	xnode := nodem + 1.5*temp2*cosim*sin2u
	xinc := inclm + 1.5*temp2*cosim*sinim*cos2u
	mvt := rdotl - nm*temp1*s.x1mth2*sin2u/g.xke
	rvdot := rvdotl + nm*temp1*(s.x1mth2*cos2u+1.5*s.con41)/g.xke

	if mrt < 1.0 {
		return pos, vel, ErrDecayed
	}

	sinsu := math.Sin(su)
	cossu := math.Cos(su)
	snod := math.Sin(xnode)
	cnod := math.Cos(xnode)
	sini := math.Sin(xinc)
	cosi := math.Cos(xinc)
	xmx := -snod * cosi
	xmy := cnod * cosi
	ux := xmx*sinsu + cnod*cossu
	uy := xmy*sinsu + snod*cossu
	uz := sini * sinsu
	vx := xmx*cossu - cnod*sinsu
	vy := xmy*cossu - snod*sinsu
	vz := sini * cossu

	const kmToM = 1000.0
	vkmpersec := g.radiusEarthKm * g.xke / 60.0

	pos[0] = mrt * ux * g.radiusEarthKm * kmToM
	pos[1] = mrt * uy * g.radiusEarthKm * kmToM
	pos[2] = mrt * uz * g.radiusEarthKm * kmToM
	vel[0] = (mvt*ux + rvdot*vx) * vkmpersec * kmToM
	vel[1] = (mvt*uy + rvdot*vy) * vkmpersec * kmToM
	vel[2] = (mvt*uz + rvdot*vz) * vkmpersec * kmToM
	return pos, vel, nil
}
