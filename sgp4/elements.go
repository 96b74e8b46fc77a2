package sgp4

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	minutesPerDay = 24.0 * 60.0
	twoPi         = 2 * 3.14159265358979323846
	deg2rad       = 3.14159265358979323846 / 180.0
)

// Elements is the two-line element set spec.md §3 names: "Satellite catalog
// number, element number, ephemeris type, epoch (year + fractional day),
// mean-motion and derivatives, B* drag term, inclination, RAAN,
// eccentricity, argument of perigee, mean anomaly, mean motion, revolution
// count."
type Elements struct {
	CatalogNumber   string
	Classification  byte
	EphemerisType   int
	ElementNumber   int
	EpochYear       int     // four-digit year
	EpochDay        float64 // fractional day of EpochYear, 1-based
	MeanMotionDot   float64 // rev/day^2, first derivative / 2 per TLE convention
	MeanMotionDDot  float64 // rev/day^3, second derivative / 6 per TLE convention
	BStar           float64 // earth radii^-1
	Inclination     float64 // degrees
	RAAN            float64 // degrees
	Eccentricity    float64
	ArgPerigee      float64 // degrees
	MeanAnomaly     float64 // degrees
	MeanMotion      float64 // rev/day
	RevolutionCount int64
}

// ParseTLE parses the standard fixed-column two-line element format (spec
// §6 GLOSSARY: "TLE — two-line element set"). Both lines must already be
// stripped of a leading title line, if any.
func ParseTLE(line1, line2 string) (*Elements, error) {
	line1 = strings.TrimRight(line1, "\r\n")
	line2 = strings.TrimRight(line2, "\r\n")
	if len(line1) < 68 || len(line2) < 68 {
		return nil, fmt.Errorf("sgp4: TLE lines too short (got %d, %d bytes)", len(line1), len(line2))
	}
	if line1[0] != '1' || line2[0] != '2' {
		return nil, fmt.Errorf("sgp4: malformed TLE line identifiers")
	}

	e := &Elements{}
	e.CatalogNumber = strings.TrimSpace(line1[2:7])
	e.Classification = line1[7]

	yy, err := strconv.Atoi(strings.TrimSpace(line1[18:20]))
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing epoch year: %w", err)
	}
	if yy < 57 {
		e.EpochYear = 2000 + yy
	} else {
		e.EpochYear = 1900 + yy
	}
	e.EpochDay, err = strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64)
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing epoch day: %w", err)
	}

	e.MeanMotionDot, err = strconv.ParseFloat(strings.TrimSpace(line1[33:43]), 64)
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing mean motion dot: %w", err)
	}
	e.MeanMotionDDot, err = parseExponential(line1[44:52])
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing mean motion ddot: %w", err)
	}
	e.BStar, err = parseExponential(line1[53:61])
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing bstar: %w", err)
	}
	if et, err := strconv.Atoi(strings.TrimSpace(line1[62:63])); err == nil {
		e.EphemerisType = et
	}
	if en, err := strconv.Atoi(strings.TrimSpace(line1[64:68])); err == nil {
		e.ElementNumber = en
	}

	e.Inclination, err = strconv.ParseFloat(strings.TrimSpace(line2[8:16]), 64)
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing inclination: %w", err)
	}
	e.RAAN, err = strconv.ParseFloat(strings.TrimSpace(line2[17:25]), 64)
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing RAAN: %w", err)
	}
	e.Eccentricity, err = strconv.ParseFloat("0."+strings.TrimSpace(line2[26:33]), 64)
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing eccentricity: %w", err)
	}
	e.ArgPerigee, err = strconv.ParseFloat(strings.TrimSpace(line2[34:42]), 64)
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing argument of perigee: %w", err)
	}
	e.MeanAnomaly, err = strconv.ParseFloat(strings.TrimSpace(line2[43:51]), 64)
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing mean anomaly: %w", err)
	}
	mmAndRev := strings.TrimSpace(line2[52:63])
	e.MeanMotion, err = strconv.ParseFloat(mmAndRev, 64)
	if err != nil {
		return nil, fmt.Errorf("sgp4: parsing mean motion: %w", err)
	}
	if rev, err := strconv.ParseInt(strings.TrimSpace(line2[63:68]), 10, 64); err == nil {
		e.RevolutionCount = rev
	}
	return e, nil
}

// parseExponential decodes a TLE's assumed-decimal-point exponential field,
// e.g. " 14854-3" -> 0.14854e-3, "-12345-4" -> -0.12345e-4.
func parseExponential(field string) (float64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, nil
	}
	sign := 1.0
	if field[0] == '-' {
		sign = -1.0
		field = field[1:]
	} else if field[0] == '+' {
		field = field[1:]
	}
	split := strings.IndexAny(field, "+-")
	if split < 0 {
		v, err := strconv.ParseFloat("0."+field, 64)
		return sign * v, err
	}
	mantissa, err := strconv.ParseFloat("0."+field[:split], 64)
	if err != nil {
		return 0, err
	}
	exp, err := strconv.Atoi(field[split:])
	if err != nil {
		return 0, err
	}
	return sign * mantissa * pow10(exp), nil
}

func pow10(exp int) float64 {
	v := 1.0
	neg := exp < 0
	if neg {
		exp = -exp
	}
	for i := 0; i < exp; i++ {
		v *= 10
	}
	if neg {
		return 1 / v
	}
	return v
}

// EpochTime returns the TLE epoch as an absolute UTC instant, used by the
// SGP4 task to compute minutes_since_epoch (spec §4.H: "now - tle.epoch").
func (e *Elements) EpochTime() time.Time {
	yearStart := time.Date(e.EpochYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	// EpochDay is 1-based ("day 1.0" == Jan 1 00:00 UTC).
	offset := time.Duration((e.EpochDay - 1.0) * 24 * float64(time.Hour))
	return yearStart.Add(offset)
}
