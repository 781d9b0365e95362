// pkg/predict/ground.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package predict

import (
	"github.com/towercab/towerview/pkg/math"
)

const (
	// Below this groundspeed an aircraft is treated as on the ground
	// absent better evidence.
	groundedSpeed = 25 // knots

	// Within this height above terrain the aircraft is clamped to it.
	groundedAGL = 10 // feet

	// Height offsets above the terrain when grounded and when flying,
	// scaled between the two across the blend band. The ground offset
	// keeps gear from sinking into the surface.
	groundOffset    = 5 // feet
	flyingOffset    = 0
	offsetBlendBand = 100 // feet AGL

	// Per-tick exponential blend factor for the terrain sample; samples
	// arrive at a few Hz and step as the aircraft crosses tile edges.
	terrainBlend = 0.1

	// Once the aircraft is unambiguously airborne the smoothed terrain is
	// abandoned so the next approach starts from a fresh sample.
	terrainResetAGL = 300 // feet

	// Clamp state changes slide the output height over this long.
	groundTransitionS = 0.3 // seconds

	// Flare detection: descending through the last few tens of feet.
	flareVS       = -200 // feet per minute
	flareAGLBand  = 50   // feet
	flareMaxPitch = 4    // degrees nose up
	// If flare somehow ended before a pitch was captured, blend down from
	// a plausible default instead.
	flareDefaultPitch = 3 // degrees
	nosewheelS        = 1 // seconds, flare-to-level blend duration
)

// terrainStore holds externally sampled terrain heights. An outside
// producer replaces the sample map at its own rate and the engine only
// reads it. Heights are ellipsoidal feet, matching what elevation tiles
// provide; geoidOffset maps the feed's MSL altitudes into that frame.
type terrainStore struct {
	samples      map[string]float32 // by callsign
	geoidOffset  float32            // add to feet MSL for ellipsoidal feet
	refElevation float32            // assumed ground height absent a sample
}

// correctHeight clamps the interpolated altitude against terrain. It
// returns the corrected altitude in feet MSL, whether the aircraft is
// being treated as on the ground, and its height above ground before
// correction.
func (st *entityState) correctHeight(tr trajectory, sample float32, haveSample bool, ts terrainStore, dt float32) (float32, bool, float32) {
	h := tr.alt + ts.geoidOffset
	terrain := sample
	if !haveSample {
		terrain = ts.refElevation
	}
	agl := h - terrain

	if !st.terrainValid {
		st.terrainSmoothed = terrain
		st.terrainValid = true
	} else {
		st.terrainSmoothed = math.Lerp(terrainBlend, st.terrainSmoothed, terrain)
	}

	grounded := tr.gs < groundedSpeed || agl < groundedAGL || terrain > h

	var target float32
	if grounded {
		target = st.terrainSmoothed + groundOffset
	} else {
		target = h + math.Lerp(math.Clamp(agl/offsetBlendBand, 0, 1), groundOffset, flyingOffset)
	}

	if agl > terrainResetAGL {
		// Unambiguously airborne; restart smoothing from scratch on the
		// next approach so a stale average doesn't drag the touchdown.
		st.terrainValid = false
	}

	if st.haveGrounded && grounded != st.grounded && !st.transitioning {
		// The clamp state flipped: slide from the previous tick's output
		// to the new target instead of snapping. A transition already in
		// progress keeps its progress and just follows the new target.
		st.transitioning = true
		st.transProgress = 0
		st.transSource = st.corrected
	}
	st.grounded, st.haveGrounded = grounded, true

	out := target
	if st.transitioning {
		st.transProgress += dt / groundTransitionS
		if st.transProgress >= 1 {
			st.transitioning = false
		} else {
			out = math.Lerp(st.transProgress, st.transSource, target)
		}
	}
	st.corrected = out

	return out - ts.geoidOffset, grounded, agl
}

// flarePitchOverlay adjusts pitch through touchdown. While flaring, the
// nose is held increasingly high as the ground gets closer; once the
// flare ends the captured pitch blends down to level over about a second,
// standing in for the nosewheel coming down. Blending to level rather
// than to the derived pitch matters: the short-term vertical rate is
// noisy during rollout and the nose would wobble.
func (st *entityState) flarePitchOverlay(pitch float32, tr trajectory, agl float32, grounded, haveSample bool, dt float32) float32 {
	inFlare := !grounded && haveSample && tr.vs < flareVS && agl > 0 && agl < flareAGLBand
	if inFlare {
		p := pitch + flareMaxPitch*(1-agl/flareAGLBand)
		st.inFlare = true
		st.flarePitch, st.flareCaptured = p, true
		st.nosewheelActive = false
		return p
	}

	if st.inFlare {
		st.inFlare = false
		st.nosewheelActive = true
		st.nosewheelBlend = 0
		st.nosewheelFrom = flareDefaultPitch
		if st.flareCaptured {
			st.nosewheelFrom = st.flarePitch
		}
	}

	if st.nosewheelActive {
		st.nosewheelBlend += dt / nosewheelS
		if st.nosewheelBlend < 1 {
			return math.Lerp(math.Smoothstep(st.nosewheelBlend), st.nosewheelFrom, 0)
		}
		st.nosewheelActive = false
	}

	return pitch
}
