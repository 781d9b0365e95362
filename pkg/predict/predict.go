// pkg/predict/predict.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package predict turns sparse aircraft position reports into smooth
// per-tick state suitable for driving a 3D view: cubic Hermite
// interpolation between observations, dead reckoning past the newest one,
// derived pitch and bank, and terrain-relative ground clamping. The
// engine runs its own scheduler, which is only active while at least one
// consumer holds a Handle from Attach.
package predict

import (
	"log/slog"
	"time"

	"github.com/brunoga/deep"
	"github.com/goforj/godump"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/log"
	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/util"
)

// DefaultTickInterval is the scheduler period, about 60 Hz.
const DefaultTickInterval = 16667 * time.Microsecond

type Engine struct {
	mu util.LoggingMutex

	source   feed.Source
	entities map[string]*entityState
	out      map[string]*PredictedState

	terrain terrainStore
	orient  orientationConfig

	events *EventStream

	attached int
	stop     chan struct{}

	lastStep     time.Time
	steps        int64
	stepTimes    *util.RingBuffer[time.Duration]
	lastSlowWarn time.Time

	tickInterval time.Duration

	lg *log.Logger
}

// New returns an engine that reads observations from source. The
// scheduler doesn't run until the first consumer calls Attach; source may
// be nil and supplied later via SetObservationSource.
func New(source feed.Source, lg *log.Logger) *Engine {
	return &Engine{
		source:       source,
		entities:     make(map[string]*entityState),
		out:          make(map[string]*PredictedState),
		orient:       orientationConfig{enabled: true, intensity: 1},
		events:       NewEventStream(lg),
		stepTimes:    util.NewRingBuffer[time.Duration](128),
		tickInterval: DefaultTickInterval,
		lg:           lg,
	}
}

// A Handle represents one consumer of the engine's output. The scheduler
// runs while at least one handle is outstanding and stops when the last
// one is released.
type Handle struct {
	e        *Engine
	released util.AtomicBool
}

// Attach registers a consumer, starting the scheduler if it isn't already
// running.
func (e *Engine) Attach() *Handle {
	e.mu.Lock(e.lg)
	defer e.mu.Unlock(e.lg)

	e.attached++
	if e.attached == 1 {
		e.stop = make(chan struct{})
		go e.run(e.stop)
	}
	return &Handle{e: e}
}

// Release detaches the consumer. Extra calls on the same handle do
// nothing.
func (h *Handle) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}

	e := h.e
	e.mu.Lock(e.lg)
	defer e.mu.Unlock(e.lg)

	e.attached--
	if e.attached == 0 && e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

func (e *Engine) run(stop chan struct{}) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Step(time.Time{})
		}
	}
}

// Step runs one update pass: pull the source's latest snapshot, reconcile
// the tracked set, and recompute every aircraft's predicted state. A zero
// now means "ask the source for the time", which is what the scheduler
// does; replay tools and tests pass explicit times.
func (e *Engine) Step(now time.Time) {
	start := time.Now()

	e.mu.Lock(e.lg)
	defer e.mu.Unlock(e.lg)

	var set feed.Set
	if e.source != nil {
		set = e.source.CurrentSet()
		if now.IsZero() {
			now = e.source.Now()
		}
	}
	if now.IsZero() {
		now = start
	}

	var added, removed []string
	if !set.Fetched.IsZero() {
		// A zero Fetched means the source hasn't produced anything yet;
		// keep predicting from what we have rather than dropping it all.
		added, removed = e.ingest(set, now)
	}

	dt := float32(e.tickInterval.Seconds())
	if !e.lastStep.IsZero() {
		if d := float32(now.Sub(e.lastStep).Seconds()); d > 0 {
			dt = d
		}
	}
	e.lastStep = now

	for _, st := range e.entities {
		e.updateEntity(st, now, dt)
	}

	d := time.Since(start)
	e.steps++
	e.stepTimes.Add(d)
	slow := util.Select(log.RaceEnabled, 50*time.Millisecond, 10*time.Millisecond)
	if d > slow && time.Since(e.lastSlowWarn) > 10*time.Second {
		e.lastSlowWarn = time.Now()
		e.lg.Warn("slow prediction step", slog.Duration("duration", d),
			slog.Int("aircraft", len(e.entities)))
	}

	for _, callsign := range added {
		e.events.Post(Event{Type: AddedAircraftEvent, Callsign: callsign})
	}
	for _, callsign := range removed {
		e.events.Post(Event{Type: RemovedAircraftEvent, Callsign: callsign})
	}
}

// updateEntity runs the prediction stages for one aircraft and publishes
// the result into its output record.
func (e *Engine) updateEntity(st *entityState, now time.Time, dt float32) {
	var tr trajectory
	if st.fresh {
		tr = st.raw()
		st.fresh = false
	} else {
		tr = st.trajectoryAt(now)
	}

	pitch, roll := st.orientation(tr, e.orient, dt)

	sample, haveSample := e.terrain.samples[st.cur.Callsign]
	alt, grounded, agl := st.correctHeight(tr, sample, haveSample, e.terrain, dt)
	pitch = st.flarePitchOverlay(pitch, tr, agl, grounded, haveSample, dt)

	out := st.out
	out.Position = tr.pos
	out.Altitude = alt
	out.Heading = tr.hdg
	out.Groundspeed = tr.gs
	out.Pitch = pitch
	out.Roll = roll
	out.VerticalRate = tr.vs
	out.TurnRate = tr.turnRate
	out.OnGround = grounded
	out.Interpolated = tr.interpolated
	out.Coasting = tr.coasting
	out.AircraftType = st.cur.AircraftType
	out.Heavy = st.cur.Heavy
	out.Frequency = st.cur.Frequency
	out.ObservedAt = st.cur.Time

	if !finiteState(out) {
		// Some numerical edge slipped through; report it and fall back to
		// the raw observation so the output stays usable.
		e.lg.Error("non-finite predicted state", slog.String("callsign", out.Callsign),
			slog.String("state", godump.DumpStr(out)))
		st.resetDerived()
		out.Position = st.cur.Position
		out.Altitude = st.cur.Altitude
		out.Heading = st.cur.Heading
		out.Groundspeed = st.cur.Groundspeed
		out.Pitch, out.Roll = 0, 0
		out.VerticalRate, out.TurnRate = 0, 0
	}
}

func finiteState(s *PredictedState) bool {
	return math.IsFinite(s.Position[0]) && math.IsFinite(s.Position[1]) &&
		math.IsFinite(s.Altitude) && math.IsFinite(s.Heading) &&
		math.IsFinite(s.Groundspeed) && math.IsFinite(s.Pitch) &&
		math.IsFinite(s.Roll) && math.IsFinite(s.VerticalRate) &&
		math.IsFinite(s.TurnRate)
}

// resetDerived clears per-entity derived state that may itself have been
// poisoned by a numerical edge.
func (st *entityState) resetDerived() {
	st.curTurnRate, st.curVertRate = 0, 0
	st.prevTurnRate, st.prevVertRate = 0, 0
	st.haveLastOrient = false
	st.terrainValid = false
	st.haveGrounded = false
	st.transitioning = false
	st.corrected = 0
	st.inFlare = false
	st.flareCaptured = false
	st.nosewheelActive = false
}

// States returns the live output map. The engine mutates its records in
// place every tick, so it must only be read from the goroutine driving
// Step, e.g. a render loop stepping the engine itself; anything else
// wants View.
func (e *Engine) States() map[string]*PredictedState {
	return e.out
}

// View returns a deep copy of the current predicted states, safe to hold
// and read from any goroutine.
func (e *Engine) View() map[string]*PredictedState {
	e.mu.Lock(e.lg)
	defer e.mu.Unlock(e.lg)

	return deep.MustCopy(e.out)
}

// Events returns the engine's event stream; it posts an event whenever an
// aircraft enters or leaves the tracked set.
func (e *Engine) Events() *EventStream {
	return e.events
}

// SetObservationSource replaces the feed, e.g. to switch from live data
// to a replay. Tracked aircraft persist until the new source produces its
// first snapshot.
func (e *Engine) SetObservationSource(source feed.Source) {
	e.mu.Lock(e.lg)
	defer e.mu.Unlock(e.lg)

	e.source = source
}

// SetTerrainSamples replaces the per-aircraft terrain heights used for
// ground clamping. samples maps callsign to terrain height in ellipsoidal
// feet; geoidOffset converts the feed's MSL altitudes into that frame and
// refElevation is the ground height assumed for aircraft without a
// sample. The map is copied, so the caller may keep mutating its own.
func (e *Engine) SetTerrainSamples(samples map[string]float32, geoidOffset, refElevation float32) {
	e.mu.Lock(e.lg)
	defer e.mu.Unlock(e.lg)

	e.terrain = terrainStore{
		samples:      util.DuplicateMap(samples),
		geoidOffset:  geoidOffset,
		refElevation: refElevation,
	}
}

// SetOrientationEmulation toggles derived pitch and bank; intensity
// scales the derived pitch, 1 for the standard gain.
func (e *Engine) SetOrientationEmulation(enabled bool, intensity float32) {
	e.mu.Lock(e.lg)
	defer e.mu.Unlock(e.lg)

	if !math.IsFinite(intensity) || intensity < 0 {
		intensity = 1
	}
	e.orient = orientationConfig{enabled: enabled, intensity: intensity}
}

// Stats reports scheduler health for status pages.
type Stats struct {
	Steps    int64
	Aircraft int
	Attached int
	AvgStep  time.Duration
	MaxStep  time.Duration
}

func (e *Engine) Stats() Stats {
	e.mu.Lock(e.lg)
	defer e.mu.Unlock(e.lg)

	s := Stats{Steps: e.steps, Aircraft: len(e.entities), Attached: e.attached}
	n := e.stepTimes.Size()
	var sum time.Duration
	for i := 0; i < n; i++ {
		d := e.stepTimes.Get(i)
		sum += d
		s.MaxStep = max(s.MaxStep, d)
	}
	if n > 0 {
		s.AvgStep = sum / time.Duration(n)
	}
	return s
}

// Destroy stops the scheduler regardless of outstanding handles and shuts
// down the event stream. For process teardown; normally handles just get
// released.
func (e *Engine) Destroy() {
	e.mu.Lock(e.lg)
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.attached = 0
	e.mu.Unlock(e.lg)

	e.events.Destroy()
}
