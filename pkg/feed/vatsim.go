// pkg/feed/vatsim.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/towercab/towerview/pkg/log"
	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/util"

	"golang.org/x/sync/errgroup"
)

const vatsimDataURL = "https://data.vatsim.net/v3/vatsim-data.json"
const vatsimTransceiversURL = "https://data.vatsim.net/v3/transceivers-data.json"

// The public data feed regenerates every 15 seconds; requesting more often
// just returns the same payload.
const vatsimFetchInterval = 15 * time.Second

// VATSIMOptions configures a VATSIMSource.
type VATSIMOptions struct {
	// Center and RadiusNM restrict the returned aircraft to a disc; a zero
	// radius disables the filter and returns the full network.
	Center   math.Point2LL
	RadiusNM float32

	// FetchTransceivers also polls the transceivers feed so that
	// observations carry the aircraft's primary COM frequency.
	FetchTransceivers bool
}

// VATSIMSource polls the public VATSIM v3 data endpoints and maintains the
// latest observation set. Fetching runs on its own goroutine, decoupled
// from consumers through a request/response channel pair so that a slow
// endpoint never stalls anyone calling CurrentSet.
type VATSIMSource struct {
	lg   *log.Logger
	opts VATSIMOptions

	mu       util.LoggingMutex
	current  map[string]*Observation
	previous map[string]*Observation
	fetched  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	requests  chan vatsimFetchRequest
	responses chan vatsimFetchResponse
}

type vatsimFetchRequest struct {
	center       math.Point2LL
	radiusNM     float32
	transceivers bool
}

type vatsimFetchResponse struct {
	aircraft map[string]*Observation
	err      error
}

func NewVATSIMSource(opts VATSIMOptions, lg *log.Logger) *VATSIMSource {
	s := &VATSIMSource{
		lg:        lg,
		opts:      opts,
		requests:  make(chan vatsimFetchRequest),
		responses: make(chan vatsimFetchResponse),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	go s.fetchAsync()
	go s.updateLoop()

	return s
}

// CurrentSet returns the most recent fetch results. The maps in the
// returned Set are never modified after publication.
func (s *VATSIMSource) CurrentSet() Set {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return Set{Current: s.current, Previous: s.previous, Fetched: s.fetched}
}

func (s *VATSIMSource) Now() time.Time { return time.Now() }

func (s *VATSIMSource) Stop() { s.cancel() }

// updateLoop owns the fetch cadence: it issues a request every 15 seconds
// as long as none is outstanding and folds responses into the published
// set, rotating current to previous.
func (s *VATSIMSource) updateLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastRequest time.Time
	outstanding := false

	request := func() {
		select {
		case s.requests <- vatsimFetchRequest{
			center:       s.opts.Center,
			radiusNM:     s.opts.RadiusNM,
			transceivers: s.opts.FetchTransceivers,
		}:
			lastRequest = time.Now()
			outstanding = true
		case <-s.ctx.Done():
		}
	}
	request()

	for {
		select {
		case <-s.ctx.Done():
			return

		case resp := <-s.responses:
			outstanding = false
			if resp.err != nil {
				// Leave the previous set in place; the engine extrapolates
				// through the gap.
				s.lg.Errorf("VATSIM fetch failed: %v", resp.err)
				continue
			}

			s.mu.Lock(s.lg)
			s.previous = s.current
			s.current = resp.aircraft
			s.fetched = time.Now()
			s.mu.Unlock(s.lg)

			s.lg.Debugf("VATSIM: %d aircraft", len(resp.aircraft))

		case <-ticker.C:
			if !outstanding && time.Since(lastRequest) > vatsimFetchInterval {
				request()
			}
		}
	}
}

func (s *VATSIMSource) fetchAsync() {
	for {
		select {
		case <-s.ctx.Done():
			return

		case req := <-s.requests:
			resp := s.fetch(req)
			select {
			case s.responses <- resp:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *VATSIMSource) fetch(req vatsimFetchRequest) vatsimFetchResponse {
	var data vatsimDataResponse
	var xcvrs []vatsimTransceiverEntry

	eg, ctx := errgroup.WithContext(s.ctx)
	eg.Go(func() error { return fetchJSON(ctx, vatsimDataURL, &data) })
	if req.transceivers {
		eg.Go(func() error {
			// A transceivers failure shouldn't lose the position data;
			// frequencies just come up empty this cycle.
			if err := fetchJSON(ctx, vatsimTransceiversURL, &xcvrs); err != nil {
				s.lg.Warnf("%s: %v", vatsimTransceiversURL, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return vatsimFetchResponse{err: err}
	}

	freq := make(map[string]float32)
	for _, x := range xcvrs {
		if len(x.Transceivers) > 0 {
			freq[x.Callsign] = float32(x.Transceivers[0].Frequency / 1e6)
		}
	}

	aircraft := make(map[string]*Observation)
	now := time.Now()
	for _, p := range data.Pilots {
		if req.radiusNM > 0 &&
			math.NMDistance2LL(req.center, math.Point2LL{p.Longitude, p.Latitude}) > req.radiusNM {
			continue
		}
		obs := p.observation(now)
		obs.Frequency = freq[p.Callsign]
		aircraft[p.Callsign] = obs
	}

	return vatsimFetchResponse{aircraft: aircraft}
}

func fetchJSON(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// vatsimDataResponse covers the slice of the v3 data JSON we consume.
type vatsimDataResponse struct {
	Pilots []vatsimPilot `json:"pilots"`
}

type vatsimPilot struct {
	CID         int       `json:"cid"`
	Name        string    `json:"name"`
	Callsign    string    `json:"callsign"`
	Latitude    float32   `json:"latitude"`
	Longitude   float32   `json:"longitude"`
	Altitude    int       `json:"altitude"`
	Groundspeed int       `json:"groundspeed"`
	Transponder string    `json:"transponder"`
	Heading     int       `json:"heading"`
	QNHHg       float32   `json:"qnh_i_hg"`
	LastUpdated time.Time `json:"last_updated"`
	FlightPlan  struct {
		Rules         string `json:"flight_rules"`
		Aircraft      string `json:"aircraft"`
		AircraftFAA   string `json:"aircraft_faa"`
		AircraftShort string `json:"aircraft_short"`
		Departure     string `json:"departure"`
		Arrival       string `json:"arrival"`
	} `json:"flight_plan"`
}

type vatsimTransceiverEntry struct {
	Callsign     string `json:"callsign"`
	Transceivers []struct {
		ID         int     `json:"id"`
		Frequency  float64 `json:"frequency"` // Hz
		LatDeg     float64 `json:"latDeg"`
		LonDeg     float64 `json:"lonDeg"`
		HeightMSLM float64 `json:"heightMslM"`
		HeightAGLM float64 `json:"heightAglM"`
	} `json:"transceivers"`
}

func (p vatsimPilot) observation(now time.Time) *Observation {
	t := p.LastUpdated
	if t.IsZero() {
		t = now
	}

	actype, heavy := parseAircraftType(p.FlightPlan.AircraftFAA, p.FlightPlan.AircraftShort)

	return &Observation{
		Callsign:     p.Callsign,
		Position:     math.Point2LL{p.Longitude, p.Latitude},
		Altitude:     float32(p.Altitude),
		Groundspeed:  float32(p.Groundspeed),
		Heading:      math.NormalizeHeading(float32(p.Heading)),
		AircraftType: actype,
		Heavy:        heavy,
		Time:         t,
	}
}

// parseAircraftType extracts the bare ICAO type code and weight class from
// an equipment string as filed, e.g. "B738/L", "H/B744/L", or "B744". The
// short form, when present, is already the bare code.
func parseAircraftType(faa, short string) (string, bool) {
	fields := strings.Split(faa, "/")

	var actype string
	var heavy bool
	switch len(fields) {
	case 3:
		// Weight prefix with equipment suffix
		heavy = fields[0] == "H" || fields[0] == "S"
		actype = fields[1]
	case 2:
		if fields[0] == "H" || fields[0] == "S" {
			// Weight prefix, no suffix
			heavy = true
			actype = fields[1]
		} else {
			// No prefix, with suffix
			actype = fields[0]
		}
	default:
		// Who knows, so leave it alone
		actype = faa
	}

	if short != "" {
		actype = short
	}
	return actype, heavy
}
