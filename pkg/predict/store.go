// pkg/predict/store.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package predict

import (
	"log/slog"
	"time"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/math"
)

// ingest merges a source snapshot into the tracked set: new aircraft are
// added (seeding an observation pair when the source has history for
// them), known aircraft rotate their pair when a genuinely newer
// timestamp arrives, and aircraft absent from the snapshot are dropped
// along with every bit of their per-entity state.
func (e *Engine) ingest(set feed.Set, now time.Time) (added, removed []string) {
	for callsign, obs := range set.Current {
		obs = e.sanitize(obs, now)
		if obs == nil {
			continue
		}

		if st, ok := e.entities[callsign]; ok {
			if obs.Time.After(st.cur.Time) {
				st.prevTurnRate, st.prevVertRate = st.curTurnRate, st.curVertRate
				st.prev, st.cur = st.cur, obs
				st.setSegmentRates()
			}
			continue
		}

		st := &entityState{cur: obs, fresh: true}
		if prev := e.sanitize(set.Previous[callsign], now); prev != nil && obs.Time.After(prev.Time) {
			// The source already has history for this aircraft, so we can
			// interpolate starting from the very first tick.
			st.prev = prev
			st.setSegmentRates()
			st.prevTurnRate, st.prevVertRate = st.curTurnRate, st.curVertRate
			st.fresh = false
		}
		st.out = &PredictedState{Callsign: callsign}
		e.entities[callsign] = st
		e.out[callsign] = st.out
		added = append(added, callsign)
	}

	for callsign := range e.entities {
		if _, ok := set.Current[callsign]; !ok {
			delete(e.entities, callsign)
			delete(e.out, callsign)
			removed = append(removed, callsign)
		}
	}
	return
}

// setSegmentRates derives the turn and vertical rates over the prev->cur
// segment. A vertical rate reported by the source takes precedence over
// differencing altitudes.
func (st *entityState) setSegmentRates() {
	interval := float32(st.cur.Time.Sub(st.prev.Time).Seconds())
	st.curTurnRate = math.Clamp(math.HeadingSignedTurn(st.prev.Heading, st.cur.Heading)/interval,
		-maxTurnRate, maxTurnRate)
	if st.cur.VerticalRate != nil {
		st.curVertRate = *st.cur.VerticalRate
	} else {
		st.curVertRate = (st.cur.Altitude - st.prev.Altitude) / interval * 60
	}
}

// sanitize validates an observation before it enters the store. Aircraft
// with an unusable position are dropped; other bad fields are repaired in
// a copy so one garbage packet can't poison downstream math.
func (e *Engine) sanitize(obs *feed.Observation, now time.Time) *feed.Observation {
	if obs == nil {
		return nil
	}
	if !math.IsFinite(obs.Position[0]) || !math.IsFinite(obs.Position[1]) ||
		math.Abs(obs.Position.Latitude()) > 90 || math.Abs(obs.Position.Longitude()) > 180 {
		e.lg.Warn("dropping observation with unusable position",
			slog.String("callsign", obs.Callsign), slog.Any("position", obs.Position))
		return nil
	}

	ok := math.IsFinite(obs.Altitude) &&
		math.IsFinite(obs.Groundspeed) && obs.Groundspeed >= 0 &&
		math.IsFinite(obs.Heading) && obs.Heading >= 0 && obs.Heading < 360 &&
		(obs.VerticalRate == nil || math.IsFinite(*obs.VerticalRate)) &&
		(obs.Roll == nil || math.IsFinite(*obs.Roll)) &&
		(obs.GroundTrack == nil || math.IsFinite(*obs.GroundTrack)) &&
		!obs.Time.IsZero() && !obs.Time.After(now.Add(time.Minute))
	if ok {
		return obs
	}

	c := *obs
	if !math.IsFinite(c.Altitude) {
		c.Altitude = 0
	}
	if !math.IsFinite(c.Groundspeed) || c.Groundspeed < 0 {
		c.Groundspeed = 0
	}
	c.Heading = math.NormalizeHeading(c.Heading)
	if !math.IsFinite(c.Heading) {
		c.Heading = 0
	}
	if c.VerticalRate != nil && !math.IsFinite(*c.VerticalRate) {
		c.VerticalRate = nil
	}
	if c.Roll != nil && !math.IsFinite(*c.Roll) {
		c.Roll = nil
	}
	if c.GroundTrack != nil && !math.IsFinite(*c.GroundTrack) {
		c.GroundTrack = nil
	}
	if c.Time.IsZero() || c.Time.After(now.Add(time.Minute)) {
		c.Time = now
	}
	return &c
}
