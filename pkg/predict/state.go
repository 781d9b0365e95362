// pkg/predict/state.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package predict

import (
	"time"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/math"
)

// PredictedState is the engine's output for one aircraft: where it is and
// how it is oriented at the current tick. The engine updates each record in
// place every tick; see Engine.States and Engine.View for the access rules.
type PredictedState struct {
	Callsign    string
	Position    math.Point2LL
	Altitude    float32 // feet MSL, after ground correction
	Heading     float32 // degrees true
	Groundspeed float32 // knots

	Pitch        float32 // degrees, positive nose up
	Roll         float32 // degrees, positive right wing down
	VerticalRate float32 // feet per minute, positive up
	TurnRate     float32 // degrees per second, positive turning right

	OnGround bool
	// Interpolated is false only on the very first tick after an aircraft
	// appears, when there is nothing to interpolate from and the raw
	// observation is reported as-is.
	Interpolated bool
	// Coasting is set once the aircraft has been extrapolated well past its
	// last observation; consumers may want to dim or flag such targets.
	Coasting bool

	AircraftType string
	Heavy        bool
	Frequency    float32 // MHz, 0 if unknown

	ObservedAt time.Time // timestamp of the newest observation used
}

// entityState is everything the engine tracks for one aircraft between
// ticks. All per-aircraft state lives here so that removing an id from the
// map drops every trace of it at once.
type entityState struct {
	cur  *feed.Observation
	prev *feed.Observation // nil until a second observation arrives

	fresh bool // true until the first tick's output has been published

	// Rates over the prev->cur segment and over the segment before it.
	// The older pair drives the "before" endpoint of orientation blending.
	curTurnRate  float32 // degrees per second
	curVertRate  float32 // feet per minute
	prevTurnRate float32
	prevVertRate float32

	// Last published orientation, for per-tick slew limiting.
	lastPitch      float32
	lastRoll       float32
	haveLastOrient bool

	// Ground correction.
	terrainValid    bool    // terrainSmoothed holds a value
	terrainSmoothed float32 // ellipsoidal feet
	grounded        bool
	haveGrounded    bool // grounded has been decided at least once
	transitioning   bool
	transProgress   float32 // 0..1
	transSource     float32 // corrected height when the transition began
	corrected       float32 // last tick's corrected height, ellipsoidal feet

	// Flare and nosewheel handling.
	inFlare         bool
	flarePitch      float32 // last pitch applied while in flare
	flareCaptured   bool
	nosewheelActive bool
	nosewheelFrom   float32
	nosewheelBlend  float32 // 0..1

	out *PredictedState
}
