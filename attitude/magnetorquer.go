package attitude

// DriverConfig holds per-axis saturation dipole and the scale from
// commanded dipole magnitude to PWM duty percentage.
type DriverConfig struct {
	SaturationDipole Vec3
	DutyScale        Vec3 // duty% per unit dipole magnitude, post-saturation
}

// AxisOutput is one magnetorquer axis' drive state: PWM duty is set via the
// MCU timer compare, polarity is a GPIO pair, enable is active-low (spec
// §4.I).
type AxisOutput struct {
	Enable   bool // true drives the enable GPIO low (active)
	Polarity bool // true for positive dipole sign
	DutyPct  float64
}

// Driver translates a commanded dipole vector into per-axis drive outputs,
// grounded on TaskMagnetorquer.hpp's hand-off to
// MagnetorquerHardwareInterface (not present in the retrieved source; the
// {enable, polarity, duty} shape and activation rule come directly from
// spec §4.I).
type Driver struct {
	cfg DriverConfig
}

func NewDriver(cfg DriverConfig) *Driver {
	return &Driver{cfg: cfg}
}

// Apply clamps dipole to saturation and returns the three axes' drive
// outputs. Enable is driven active on every axis regardless of commanded
// magnitude; a zero-dipole axis simply carries zero duty (spec §8 scenario
// 5: "enable gpios driven low" applies to all three axes even though the
// X-axis dipole is zero).
func (d *Driver) Apply(dipole Vec3) [3]AxisOutput {
	clamped := dipole.Clip(d.cfg.SaturationDipole)
	var out [3]AxisOutput
	for i := 0; i < 3; i++ {
		out[i] = AxisOutput{
			Enable:   true,
			Polarity: clamped[i] >= 0,
			DutyPct:  abs(clamped[i]) * d.cfg.DutyScale[i],
		}
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
