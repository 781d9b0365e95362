// pkg/feed/feed.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package feed supplies aircraft position observations to the prediction
// engine, either live from the VATSIM data API or played back from a
// recorded archive.
package feed

import (
	"time"

	"github.com/towercab/towerview/pkg/math"
)

// An Observation is a single aircraft state report from a position feed.
// Observations are immutable once constructed; sources allocate a new one
// for each report rather than updating in place.
type Observation struct {
	Callsign    string
	Position    math.Point2LL
	Altitude    float32 // feet MSL
	Groundspeed float32 // knots
	Heading     float32 // degrees true

	// The following are only available from some sources; nil when the
	// source doesn't report them.
	VerticalRate *float32 // feet per minute, positive up
	Roll         *float32 // degrees, positive right wing down
	GroundTrack  *float32 // degrees true

	AircraftType string // bare ICAO type code, e.g. "B738"
	Heavy        bool
	Frequency    float32 // primary COM frequency in MHz, 0 if unknown

	Time time.Time // when the upstream source last updated this aircraft
}

// A Set is one snapshot of everything a source knows: the most recent
// observation for each aircraft plus, where available, the one from the
// fetch before. Sources build the maps fresh for each fetch and never
// modify them afterward, so holding on to a returned Set is safe.
type Set struct {
	Current  map[string]*Observation
	Previous map[string]*Observation
	Fetched  time.Time
}

// Source is implemented by anything that supplies observation sets: the
// live VATSIM poller, a replay archive, or a test stub.
type Source interface {
	// CurrentSet returns the latest snapshot; it may be called from any
	// goroutine.
	CurrentSet() Set

	// Now returns the current time in the source's time base: wall-clock
	// for live sources, the virtual playback clock for replays.
	Now() time.Time

	// Stop shuts down any background fetching. The last returned Set
	// remains valid.
	Stop()
}
