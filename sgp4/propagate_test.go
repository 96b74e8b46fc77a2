package sgp4

import (
	"math"
	"testing"
	"time"
)

// spec.md §8 scenario 4: ISS TLE, propagated to 2025-06-25T18:00:00Z.
func TestPropagateISSKnownEpoch(t *testing.T) {
	const line1 = "1 25544U 98067A   25176.73245655  .00008102  00000-0  14854-3 0  9994"
	const line2 = "2 25544  51.6390 264.7180 0001990 278.3788 217.2311 15.50240116516482"

	el, err := ParseTLE(line1, line2)
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	sat, err := Init(el)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	target, err := time.Parse(time.RFC3339, "2025-06-25T18:00:00Z")
	if err != nil {
		t.Fatalf("parsing target time: %v", err)
	}
	tsinceMin := target.Sub(el.EpochTime()).Minutes()

	pos, vel, err := sat.Propagate(tsinceMin)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	wantPos := [3]float64{-3006157, 4331221, -4290440}
	wantVelMperSec := [3]float64{-3380.8, -5872.9, -3561.0}
	for i := range wantPos {
		if diff := math.Abs(pos[i] - wantPos[i]); diff > 10 {
			t.Fatalf("pos[%d] = %.3f, want %.3f +/- 10 m (diff %.3f)", i, pos[i], wantPos[i], diff)
		}
	}
	for i := range wantVelMperSec {
		gotMMperSec := vel[i] * 1000
		wantMMperSec := wantVelMperSec[i] * 1000
		if diff := math.Abs(gotMMperSec - wantMMperSec); diff > 10 {
			t.Fatalf("vel[%d] = %.4f mm/s, want %.4f +/- 10 mm/s (diff %.4f)", i, gotMMperSec, wantMMperSec, diff)
		}
	}
}

func TestInitRejectsNonPositiveMeanMotion(t *testing.T) {
	el := &Elements{MeanMotion: 0}
	if _, err := Init(el); err != ErrMeanMotion {
		t.Fatalf("Init: err = %v, want ErrMeanMotion", err)
	}
}

func TestPropagateEccentricityOutOfRangeFails(t *testing.T) {
	const line1 = "1 25544U 98067A   25176.73245655  .00008102  00000-0  14854-3 0  9994"
	const line2 = "2 25544  51.6390 264.7180 0001990 278.3788 217.2311 15.50240116516482"
	el, err := ParseTLE(line1, line2)
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	sat, err := Init(el)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	// An implausibly large bstar drives tempe, and so em, far out of [0,1)
	// after enough elapsed time, exercising the eccentricity guard (spec
	// §4.H/§7: "eccentricity >= 1 ... propagator sets an error code").
	sat.bstar = 50.0
	if _, _, err := sat.Propagate(600000); err == nil {
		t.Fatal("expected a propagation error for a wildly perturbed eccentricity")
	}
}
