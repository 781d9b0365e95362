// pkg/predict/orient.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package predict

import (
	"github.com/towercab/towerview/pkg/math"
)

const (
	gravity = 9.81 // m/s^2

	minPitch = -15 // degrees
	maxPitch = 20

	maxBank = 35 // degrees

	// Below this groundspeed treat the target as taxiing or a ground
	// vehicle; vehicles yaw without banking.
	bankSpeedFloor = 40 // knots

	// Slew limits applied when a source reports attitude directly; feeds
	// that refresh at a few Hz are noisy enough to need smoothing.
	maxPitchSlew = 6  // degrees per second
	maxRollSlew  = 10 // degrees per second
)

type orientationConfig struct {
	enabled   bool
	intensity float32 // scales derived pitch
}

// derivePitch estimates pitch attitude from the climb gradient. A
// near-stationary aircraft gets a neutral attitude rather than the
// straight-up one atan2 would report.
func derivePitch(vsFPM, gsKt, intensity float32) float32 {
	if gsKt < 1 {
		return 0
	}
	p := math.Degrees(math.Atan2(vsFPM/60, gsKt*math.KnotsToFeetPerSecond))
	return math.Clamp(p, minPitch, maxPitch) * intensity
}

// deriveRoll estimates bank from the coordinated-turn relation
// tan(roll) = v*omega/g.
func deriveRoll(gsKt, turnRateDps float32) float32 {
	if gsKt < bankSpeedFloor {
		return 0
	}
	v := gsKt * math.KnotsToMetersPerSecond
	omega := math.Radians(turnRateDps)
	return math.Clamp(math.Degrees(math.Atan2(v*omega, gravity)), -maxBank, maxBank)
}

// orientation computes pitch and roll for the current tick. Both are
// evaluated at the two segment endpoints, each from that endpoint's rates
// and groundspeed, then blended across the interpolation window with an
// ease gentler than smoothstep so the attitude doesn't visibly snap when
// a new observation rotates in.
func (st *entityState) orientation(tr trajectory, cfg orientationConfig, dt float32) (pitch, roll float32) {
	if cfg.enabled {
		blend := math.EaseInOut(math.Clamp(tr.t, 0, 1))

		beforeVS, afterVS := st.prevVertRate, st.curVertRate
		beforeTurn, afterTurn := st.prevTurnRate, st.curTurnRate
		beforeGS := tr.gs
		if st.prev != nil {
			beforeGS = st.prev.Groundspeed
		}
		if tr.t >= 1 {
			// Extrapolating: the trajectory carries the decayed rates, so
			// the attitude relaxes along with the turn.
			afterVS, afterTurn = tr.vs, tr.turnRate
		}

		pitch = math.Lerp(blend, derivePitch(beforeVS, beforeGS, cfg.intensity),
			derivePitch(afterVS, tr.gs, cfg.intensity))
		roll = math.Lerp(blend, deriveRoll(beforeGS, beforeTurn),
			deriveRoll(tr.gs, afterTurn))
	}

	// Attitude reported by the source wins over the estimate, rate limited
	// since it only refreshes every few hundred milliseconds at best.
	if st.cur.Roll != nil {
		roll = math.Clamp(*st.cur.Roll, -maxBank, maxBank)
		if st.haveLastOrient {
			roll = slewToward(st.lastRoll, roll, maxRollSlew*dt)
		}
	}
	if st.cur.VerticalRate != nil && st.haveLastOrient {
		pitch = slewToward(st.lastPitch, pitch, maxPitchSlew*dt)
	}

	st.lastPitch, st.lastRoll = pitch, roll
	st.haveLastOrient = true
	return
}

// slewToward moves from toward to, changing by at most maxDelta.
func slewToward(from, to, maxDelta float32) float32 {
	return from + math.Clamp(to-from, -maxDelta, maxDelta)
}
