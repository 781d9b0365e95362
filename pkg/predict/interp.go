// pkg/predict/interp.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package predict

import (
	gomath "math"
	"time"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/math"
)

const (
	// Turn rates beyond this are sensor noise or teleporting data; clamp
	// them before they drive anything.
	maxTurnRate = 6 // degrees per second

	// Extrapolated turns bleed off exponentially with this half-life so a
	// stale turning aircraft straightens out instead of orbiting forever.
	turnDecayHalfLife = 3 // seconds
	turnDecayRate     = gomath.Ln2 / turnDecayHalfLife

	// Extrapolation continues indefinitely, but past this long without
	// fresh data the output is flagged so consumers can dim the target.
	coastingSeconds = 45

	// Observations closer together than about a meter make the spline
	// degenerate; hold position instead.
	coincidentThresholdNM = 0.00054
)

// trajectory is the kinematic output of the interpolation stage for one
// aircraft at one instant, before orientation and ground correction run.
type trajectory struct {
	pos math.Point2LL
	alt float32 // feet MSL, uncorrected
	hdg float32 // degrees true
	gs  float32 // knots

	vs       float32 // feet per minute
	turnRate float32 // degrees per second

	// t is the position along the prev->cur segment; 1 when extrapolating.
	// It parameterizes orientation blending.
	t            float32
	interpolated bool
	coasting     bool
}

// raw returns the newest observation verbatim; it is what an aircraft's
// very first tick publishes, there being nothing yet to interpolate from.
func (st *entityState) raw() trajectory {
	return trajectory{
		pos:      st.cur.Position,
		alt:      st.cur.Altitude,
		hdg:      st.cur.Heading,
		gs:       st.cur.Groundspeed,
		vs:       st.curVertRate,
		turnRate: st.curTurnRate,
		t:        1,
	}
}

// trajectoryAt computes the aircraft's kinematic state at now,
// interpolating within the stored observation pair or dead reckoning once
// now has passed the newest observation.
func (st *entityState) trajectoryAt(now time.Time) trajectory {
	if st.prev == nil || !st.cur.Time.After(st.prev.Time) {
		// Only one usable observation so far.
		return st.deadReckon(now)
	}

	interval := float32(st.cur.Time.Sub(st.prev.Time).Seconds())
	t := float32(now.Sub(st.prev.Time).Seconds()) / interval
	if t > 1 {
		return st.deadReckon(now)
	}
	return st.interpolate(math.Max(t, 0))
}

// interpolate evaluates the cubic Hermite segment between the stored pair
// at parameter t in [0, 1]. The tangents are the endpoint velocities in
// latitude-longitude space scaled by the update interval, which keeps the
// curve's speed consistent with the reported groundspeeds and makes
// successive segments join smoothly.
func (st *entityState) interpolate(t float32) trajectory {
	prev, cur := st.prev, st.cur
	interval := float32(cur.Time.Sub(prev.Time).Seconds())

	tr := trajectory{
		alt:          math.Lerp(t, prev.Altitude, cur.Altitude),
		hdg:          math.LerpHeading(t, prev.Heading, cur.Heading),
		gs:           math.Lerp(math.Smoothstep(t), prev.Groundspeed, cur.Groundspeed),
		vs:           st.curVertRate,
		turnRate:     st.curTurnRate,
		t:            t,
		interpolated: true,
	}

	if math.NMDistance2LL(prev.Position, cur.Position) < coincidentThresholdNM {
		// Stationary or re-reported; the tangents would dwarf the segment.
		tr.pos = cur.Position
		return tr
	}

	m0 := velocityTangent(prev, interval)
	m1 := velocityTangent(cur, interval)
	tr.pos = math.Point2LL(math.Hermite2f(t, [2]float32(prev.Position), m0, [2]float32(cur.Position), m1))
	return tr
}

// velocityTangent returns an observation's velocity in degrees of
// longitude and latitude per update interval, i.e. the Hermite tangent
// for a segment parameterized over [0, 1].
func velocityTangent(obs *feed.Observation, interval float32) [2]float32 {
	dir := obs.Heading
	if obs.GroundTrack != nil {
		dir = *obs.GroundTrack
	}
	nmPerS := obs.Groundspeed / 3600

	lat := nmPerS * math.Cos(math.Radians(dir)) / math.NMPerLatitude
	var lon float32
	// Longitude rates blow up approaching the poles; zero the component
	// rather than launch the aircraft sideways.
	if nmPerLon := math.NMPerLongitudeAt(obs.Position.Latitude()); nmPerLon > 1 {
		lon = nmPerS * math.Sin(math.Radians(dir)) / nmPerLon
	}
	return [2]float32{lon * interval, lat * interval}
}

// deadReckon projects the newest observation forward: position along a
// great circle at constant groundspeed, heading turning at an
// exponentially decaying rate, altitude continuing at the last vertical
// rate but never below sea level.
func (st *entityState) deadReckon(now time.Time) trajectory {
	cur := st.cur
	tr := st.raw()
	tr.interpolated = true

	s := float32(now.Sub(cur.Time).Seconds())
	if s <= 0 {
		return tr
	}

	tau := math.Clamp(st.curTurnRate, -maxTurnRate, maxTurnRate)
	decay := math.Exp(-turnDecayRate * s)
	tr.turnRate = tau * decay
	tr.hdg = math.NormalizeHeading(cur.Heading + tau*(1-decay)/turnDecayRate)

	// The chord to the extrapolated position runs along the time-averaged
	// direction over the span.
	dir := cur.Heading
	if cur.GroundTrack != nil {
		dir = *cur.GroundTrack
	}
	if x := turnDecayRate * s; x < 1e-4 {
		dir += tau * s / 2
	} else {
		dir += (tau / turnDecayRate) * (1 - (1-decay)/x)
	}
	tr.pos = math.GreatCircleOffset2LL(cur.Position, math.NormalizeHeading(dir), cur.Groundspeed*s/3600)

	tr.alt = cur.Altitude + st.curVertRate*s/60
	if tr.alt < 0 {
		tr.alt = 0
		tr.vs = 0
	}

	tr.coasting = s > coastingSeconds
	return tr
}
