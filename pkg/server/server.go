// pkg/server/server.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package server exposes the prediction engine over HTTP: JSON state
// snapshots for remote viewers plus a human-readable status page.
package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/towercab/towerview/pkg/log"
	"github.com/towercab/towerview/pkg/predict"
	"github.com/towercab/towerview/pkg/util"
)

// DefaultPort is the first port the listen loop tries.
const DefaultPort = 6502

// How long dropped aircraft stay on the status page.
const removedRetention = 15 * time.Minute

type Options struct {
	Port int // defaults to DefaultPort; the next nine ports are probed if busy
}

// A Server holds an engine attachment for its whole lifetime, so the
// engine ticks as long as the server is up even with no other consumers.
type Server struct {
	engine *predict.Engine
	handle *predict.Handle

	sub     *predict.EventsSubscription
	removed *util.TransientMap[string, time.Time]

	listener  net.Listener
	port      int
	startTime time.Time
	done      chan struct{}

	lg *log.Logger
}

func New(engine *predict.Engine, opts Options, lg *log.Logger) (*Server, error) {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}

	s := &Server{
		engine:    engine,
		removed:   util.NewTransientMap[string, time.Time](),
		startTime: time.Now(),
		done:      make(chan struct{}),
		lg:        lg,
	}

	var err error
	for i := 0; i < 10; i++ {
		port := opts.Port + i
		if s.listener, err = net.Listen("tcp", ":"+strconv.Itoa(port)); err == nil {
			s.port = port
			break
		}
	}
	if s.listener == nil {
		return nil, fmt.Errorf("no unused port in %d-%d: %w", opts.Port, opts.Port+9, err)
	}

	s.handle = engine.Attach()
	s.sub = engine.Events().Subscribe()
	go s.pollEvents()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/states", s.statesHandler)
	mux.HandleFunc("/api/aircraft", s.aircraftHandler)
	mux.HandleFunc("/sup", func(w http.ResponseWriter, r *http.Request) {
		s.statsHandler(w, r)
		s.lg.Infof("%s: served stats request", r.URL.String())
	})
	registerPprof(mux)

	go func() {
		if err := http.Serve(s.listener, mux); err != nil {
			select {
			case <-s.done:
				// Shutdown closed the listener out from under Serve.
			default:
				s.lg.Errorf("HTTP server error: %v", err)
			}
		}
	}()

	s.lg.Infof("listening on port %d", s.port)
	return s, nil
}

// Port reports the port actually bound, which may be above the requested
// one if it was busy.
func (s *Server) Port() int { return s.port }

// Shutdown stops serving and releases the engine attachment. In-flight
// requests are abandoned; this isn't a graceful drain.
func (s *Server) Shutdown() {
	close(s.done)
	s.listener.Close()
	s.sub.Unsubscribe()
	s.handle.Release()
}

// pollEvents drains membership events so dropped aircraft can be listed
// on the status page for a while after they disappear.
func (s *Server) pollEvents() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.drainEvents()
		}
	}
}

func (s *Server) drainEvents() {
	for _, ev := range s.sub.Get() {
		if ev.Type == predict.RemovedAircraftEvent {
			s.removed.Add(ev.Callsign, time.Now(), removedRetention)
		}
	}
}

// statesSnapshot is the /api/states response body.
type statesSnapshot struct {
	Time     time.Time                          `json:"time"`
	Aircraft map[string]*predict.PredictedState `json:"aircraft"`
}

func (s *Server) statesHandler(w http.ResponseWriter, r *http.Request) {
	snap := statesSnapshot{
		Time:     time.Now().UTC(),
		Aircraft: s.engine.View(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.lg.Warnf("/api/states: encoding response: %v", err)
	}
}

func (s *Server) aircraftHandler(w http.ResponseWriter, r *http.Request) {
	callsign := strings.ToUpper(strings.TrimSpace(r.FormValue("callsign")))
	if callsign == "" {
		http.Error(w, "missing callsign parameter", http.StatusBadRequest)
		return
	}

	state, ok := s.engine.View()[callsign]
	if !ok {
		http.Error(w, callsign+" is not being tracked", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		s.lg.Warnf("/api/aircraft: encoding response: %v", err)
	}
}
