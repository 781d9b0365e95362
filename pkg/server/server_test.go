// pkg/server/server_test.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/predict"
	"github.com/towercab/towerview/pkg/util"
)

type stubSource struct {
	set feed.Set
	now time.Time
}

func (s *stubSource) CurrentSet() feed.Set { return s.set }
func (s *stubSource) Now() time.Time       { return s.now }
func (s *stubSource) Stop()                {}

func testEngine(t *testing.T) *predict.Engine {
	t.Helper()

	epoch := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	src := &stubSource{
		set: feed.Set{
			Current: map[string]*feed.Observation{
				"UAL1": {
					Callsign:    "UAL1",
					Position:    math.Point2LL{-122.375, 37.6188},
					Altitude:    5000,
					Groundspeed: 250,
					Heading:     90,
					Time:        epoch,
				},
			},
			Fetched: epoch,
		},
		now: epoch,
	}

	e := predict.New(src, nil)
	t.Cleanup(e.Destroy)
	e.Step(epoch)
	return e
}

func testServer(e *predict.Engine) *Server {
	return &Server{
		engine:    e,
		removed:   util.NewTransientMap[string, time.Time](),
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

func TestStatesHandler(t *testing.T) {
	s := testServer(testEngine(t))

	w := httptest.NewRecorder()
	s.statesHandler(w, httptest.NewRequest("GET", "/api/states", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected a JSON content type, got %q", ct)
	}

	var snap statesSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("response did not decode: %v", err)
	}
	state, ok := snap.Aircraft["UAL1"]
	if !ok {
		t.Fatalf("UAL1 missing from snapshot: %+v", snap)
	}
	if state.Altitude != 5000 || state.Heading != 90 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestAircraftHandler(t *testing.T) {
	s := testServer(testEngine(t))

	// Callsign matching is case-insensitive.
	w := httptest.NewRecorder()
	s.aircraftHandler(w, httptest.NewRequest("GET", "/api/aircraft?callsign=ual1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for ual1, got %d", w.Code)
	}
	var state predict.PredictedState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("response did not decode: %v", err)
	}
	if state.Callsign != "UAL1" {
		t.Errorf("wrong aircraft returned: %+v", state)
	}

	w = httptest.NewRecorder()
	s.aircraftHandler(w, httptest.NewRequest("GET", "/api/aircraft?callsign=NOPE99", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown callsign, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.aircraftHandler(w, httptest.NewRequest("GET", "/api/aircraft", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a callsign, got %d", w.Code)
	}
}

func TestServerLifecycle(t *testing.T) {
	e := testEngine(t)

	s, err := New(e, Options{Port: 39201}, nil)
	if err != nil {
		t.Fatalf("server did not start: %v", err)
	}

	url := fmt.Sprintf("http://localhost:%d/api/states", s.Port())
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("GET %s never succeeded: %v", url, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A second server probes past the taken port.
	s2, err := New(e, Options{Port: 39201}, nil)
	if err != nil {
		t.Fatalf("second server did not start: %v", err)
	}
	if s2.Port() == s.Port() {
		t.Errorf("both servers claim port %d", s.Port())
	}
	s2.Shutdown()

	s.Shutdown()
	if _, err := http.Get(url); err == nil {
		t.Errorf("server still serving after Shutdown")
	}
}

func TestRemovedAircraftTracking(t *testing.T) {
	epoch := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	src := &stubSource{
		set: feed.Set{
			Current: map[string]*feed.Observation{
				"DAL5": {Callsign: "DAL5", Position: math.Point2LL{-80, 26}, Groundspeed: 140, Time: epoch},
			},
			Fetched: epoch,
		},
		now: epoch,
	}
	e := predict.New(src, nil)
	defer e.Destroy()
	e.Step(epoch)

	s := testServer(e)
	s.sub = e.Events().Subscribe()
	defer s.sub.Unsubscribe()

	src.set = feed.Set{Current: map[string]*feed.Observation{}, Fetched: epoch.Add(15 * time.Second)}
	e.Step(epoch.Add(15 * time.Second))
	s.drainEvents()

	if _, ok := s.removed.Get("DAL5"); !ok {
		t.Errorf("dropped aircraft not retained for the status page")
	}
}
