// pkg/predict/interp_test.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package predict

import (
	"testing"
	"time"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/math"
)

var testEpoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func obsAt(pos math.Point2LL, alt, gs, hdg float32, at time.Time) *feed.Observation {
	return &feed.Observation{
		Callsign:    "TEST1",
		Position:    pos,
		Altitude:    alt,
		Groundspeed: gs,
		Heading:     hdg,
		Time:        at,
	}
}

// pairState builds an entityState from two observations the way ingest
// would, including the segment rates.
func pairState(prev, cur *feed.Observation) *entityState {
	st := &entityState{prev: prev, cur: cur}
	st.setSegmentRates()
	st.prevTurnRate, st.prevVertRate = st.curTurnRate, st.curVertRate
	st.out = &PredictedState{Callsign: cur.Callsign}
	return st
}

func TestInterpolationMidpoint(t *testing.T) {
	// Eastbound along the equator: two fixes 0.05 degrees of longitude
	// apart, 15 seconds apart. Halfway in time should be halfway along.
	prev := obsAt(math.Point2LL{0, 0}, 1000, 200, 90, testEpoch)
	cur := obsAt(math.Point2LL{0.05, 0}, 1000, 200, 90, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	tr := st.trajectoryAt(testEpoch.Add(7500 * time.Millisecond))
	if !tr.interpolated {
		t.Errorf("midpoint not marked interpolated")
	}
	if lon := tr.pos.Longitude(); math.Abs(lon-0.025) > 1e-4 {
		t.Errorf("expected longitude ~0.025, got %v", lon)
	}
	if lat := tr.pos.Latitude(); math.Abs(lat) > 1e-5 {
		t.Errorf("expected latitude ~0, got %v", lat)
	}
	if tr.hdg != 90 {
		t.Errorf("expected heading 90, got %v", tr.hdg)
	}
	if tr.gs != 200 {
		t.Errorf("expected groundspeed 200, got %v", tr.gs)
	}
}

func TestExtrapolationStraight(t *testing.T) {
	prev := obsAt(math.Point2LL{0, 0}, 1000, 200, 90, testEpoch)
	cur := obsAt(math.Point2LL{0.05, 0}, 1000, 200, 90, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	// 7.5 seconds past the newest fix at 200 knots is 0.41667 nm, about
	// 0.0069 degrees of longitude at the equator.
	tr := st.trajectoryAt(testEpoch.Add(22500 * time.Millisecond))
	if !tr.interpolated {
		t.Errorf("extrapolation not marked interpolated")
	}
	if lon := tr.pos.Longitude(); math.Abs(lon-0.0569) > 3e-4 {
		t.Errorf("expected longitude ~0.0569, got %v", lon)
	}
	if tr.hdg != 90 {
		t.Errorf("expected heading to stay 90, got %v", tr.hdg)
	}
	if tr.gs != 200 {
		t.Errorf("expected groundspeed 200, got %v", tr.gs)
	}
	if tr.coasting {
		t.Errorf("coasting after only 7.5 seconds")
	}
}

func TestArrivalAtCurrent(t *testing.T) {
	prev := obsAt(math.Point2LL{-71, 42}, 2000, 180, 350, testEpoch)
	cur := obsAt(math.Point2LL{-70.99, 42.04}, 2600, 200, 10, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	tr := st.trajectoryAt(testEpoch.Add(15 * time.Second))
	if tr.pos != cur.Position {
		t.Errorf("expected exact arrival at %v, got %v", cur.Position, tr.pos)
	}
	if tr.hdg != 10 {
		t.Errorf("expected heading 10 at arrival, got %v", tr.hdg)
	}
	if tr.alt != 2600 || tr.gs != 200 {
		t.Errorf("expected altitude 2600 and groundspeed 200, got %v and %v", tr.alt, tr.gs)
	}
}

func TestHeadingWrapInterpolation(t *testing.T) {
	// Turning from 350 to 010 crosses north; it must never swing through
	// south.
	prev := obsAt(math.Point2LL{0, 40}, 1000, 150, 350, testEpoch)
	cur := obsAt(math.Point2LL{0.002, 40.008}, 1000, 150, 10, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	for _, x := range []float32{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
		tr := st.interpolate(x)
		if d := math.HeadingDifference(tr.hdg, 180); d < 90 {
			t.Errorf("t=%v: heading %v swung the long way around", x, tr.hdg)
		}
	}
	if h := st.interpolate(0.5).hdg; math.HeadingDifference(h, 0) > 0.01 {
		t.Errorf("expected heading ~000 at midpoint, got %v", h)
	}
}

func TestCoincidentEndpoints(t *testing.T) {
	// Same reported position twice: position holds, but altitude and the
	// other scalars still interpolate.
	p := math.Point2LL{-71.0096, 42.3656}
	prev := obsAt(p, 1000, 0, 90, testEpoch)
	cur := obsAt(p, 1200, 0, 100, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	tr := st.interpolate(0.5)
	if tr.pos != p {
		t.Errorf("expected position to hold at %v, got %v", p, tr.pos)
	}
	if tr.alt != 1100 {
		t.Errorf("expected altitude 1100, got %v", tr.alt)
	}
	if math.Abs(tr.hdg-95) > 0.01 {
		t.Errorf("expected heading 95, got %v", tr.hdg)
	}
}

func TestTrajectoryContinuity(t *testing.T) {
	prev := obsAt(math.Point2LL{-71, 42}, 3000, 180, 80, testEpoch)
	cur := obsAt(math.Point2LL{-70.9804, 42}, 3500, 210, 100, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	// Step at 60 Hz through interpolation and into extrapolation; no tick
	// may move the aircraft more than a few times the reported speeds.
	dt := time.Second / 60
	maxStep := 3 * 210 * float32(dt.Seconds()) / 3600 // nm
	last := st.trajectoryAt(testEpoch)
	for i := 1; i < 20*60; i++ {
		tr := st.trajectoryAt(testEpoch.Add(time.Duration(i) * dt))
		if d := math.NMDistance2LL(last.pos, tr.pos); d > maxStep {
			t.Errorf("tick %d: aircraft jumped %v nm", i, d)
		}
		if !math.IsFinite(tr.pos[0]) || !math.IsFinite(tr.pos[1]) || !math.IsFinite(tr.hdg) {
			t.Fatalf("tick %d: non-finite trajectory", i)
		}
		last = tr
	}
}

func TestExtrapolatedTurnDecay(t *testing.T) {
	// A 3 deg/sec right turn at the last fix: the extrapolated heading
	// keeps increasing but settles at a constant.
	prev := obsAt(math.Point2LL{0, 40}, 5000, 240, 0, testEpoch)
	cur := obsAt(math.Point2LL{0, 40.01}, 5000, 240, 45, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	last := float32(45)
	for _, s := range []float32{1, 2, 4, 8, 16, 32} {
		tr := st.deadReckon(cur.Time.Add(time.Duration(s * float32(time.Second))))
		if turn := math.HeadingSignedTurn(last, tr.hdg); turn < 0 {
			t.Errorf("s=%v: heading %v turned back past %v", s, tr.hdg, last)
		}
		last = tr.hdg
	}

	asym := math.NormalizeHeading(45 + 3/turnDecayRate)
	tr := st.deadReckon(cur.Time.Add(60 * time.Second))
	if math.HeadingDifference(tr.hdg, asym) > 0.1 {
		t.Errorf("expected heading to settle at %v, got %v", asym, tr.hdg)
	}
	if math.Abs(tr.turnRate) > 0.01 {
		t.Errorf("turn rate did not decay: %v", tr.turnRate)
	}
	if !tr.coasting {
		t.Errorf("expected coasting after 60 seconds without data")
	}
}

func TestExtrapolationAltitudeFloor(t *testing.T) {
	// Descending at 1000 fpm from 150 feet: the extrapolated altitude
	// runs out at zero rather than going submarine.
	prev := obsAt(math.Point2LL{0, 40}, 400, 120, 90, testEpoch)
	cur := obsAt(math.Point2LL{0.008, 40}, 150, 120, 90, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	tr := st.deadReckon(cur.Time.Add(3 * time.Second))
	if math.Abs(tr.alt-100) > 0.1 || tr.vs != -1000 {
		t.Errorf("expected altitude 100 at -1000 fpm, got %v at %v", tr.alt, tr.vs)
	}

	tr = st.deadReckon(cur.Time.Add(12 * time.Second))
	if tr.alt != 0 {
		t.Errorf("expected altitude floored at 0, got %v", tr.alt)
	}
	if tr.vs != 0 {
		t.Errorf("expected vertical rate zeroed at the floor, got %v", tr.vs)
	}
}

func TestSingleObservationDeadReckons(t *testing.T) {
	cur := obsAt(math.Point2LL{-70, 41}, 2500, 120, 45, testEpoch)
	st := &entityState{cur: cur, out: &PredictedState{Callsign: cur.Callsign}}

	// Before the observation's own timestamp the raw fix is reported.
	tr := st.trajectoryAt(testEpoch.Add(-time.Second))
	if tr.pos != cur.Position {
		t.Errorf("expected raw position before the fix, got %v", tr.pos)
	}

	// With no second observation the aircraft still moves, straight ahead
	// at the reported speed: 120 knots for 30 seconds is one mile.
	tr = st.trajectoryAt(testEpoch.Add(30 * time.Second))
	if d := math.NMDistance2LL(cur.Position, tr.pos); math.Abs(d-1) > 0.01 {
		t.Errorf("expected 1 nm traveled, got %v", d)
	}
	if tr.hdg != 45 {
		t.Errorf("heading changed with no turn rate: %v", tr.hdg)
	}
	if !tr.interpolated {
		t.Errorf("dead reckoning not marked interpolated")
	}
}

func TestGroundTrackPreferredForMotion(t *testing.T) {
	// Crabbing in wind: heading 90 but tracking 080 over the ground. The
	// position moves along the track while the nose stays on the heading.
	track := float32(80)
	cur := obsAt(math.Point2LL{-70, 41}, 2500, 120, 90, testEpoch)
	cur.GroundTrack = &track
	st := &entityState{cur: cur, out: &PredictedState{Callsign: cur.Callsign}}

	tr := st.trajectoryAt(testEpoch.Add(30 * time.Second))
	bearing := math.Heading2LL(cur.Position, tr.pos, math.NMPerLongitudeAt(41))
	if math.HeadingDifference(bearing, 80) > 0.5 {
		t.Errorf("expected motion along track 080, got bearing %v", bearing)
	}
	if tr.hdg != 90 {
		t.Errorf("expected displayed heading to stay 090, got %v", tr.hdg)
	}
}

func TestNearPoleLongitudeGuard(t *testing.T) {
	prev := obsAt(math.Point2LL{10, 89.9}, 10000, 300, 90, testEpoch)
	cur := obsAt(math.Point2LL{10.5, 89.9}, 10000, 300, 90, testEpoch.Add(15*time.Second))
	st := pairState(prev, cur)

	for _, x := range []float32{0, 0.25, 0.5, 0.75, 1} {
		tr := st.interpolate(x)
		if !math.IsFinite(tr.pos[0]) || !math.IsFinite(tr.pos[1]) {
			t.Fatalf("t=%v: non-finite position near the pole", x)
		}
		if math.Abs(tr.pos.Latitude()-89.9) > 0.1 {
			t.Errorf("t=%v: latitude ran away: %v", x, tr.pos.Latitude())
		}
	}
}
