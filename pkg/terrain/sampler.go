// pkg/terrain/sampler.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package terrain

import (
	"context"
	"time"

	"github.com/towercab/towerview/pkg/log"
	"github.com/towercab/towerview/pkg/predict"
)

// SamplerOptions configures a Sampler. GeoidOffset converts the feed's
// MSL altitudes into the elevation data's frame; ReferenceElevation is
// what the engine assumes for aircraft with no sample yet.
type SamplerOptions struct {
	Interval           time.Duration // defaults to 500ms
	GeoidOffset        float32       // feet
	ReferenceElevation float32       // feet
}

// A Sampler periodically looks up the terrain height under each tracked
// aircraft and hands the results to the prediction engine. It runs its
// own goroutine so a slow tile fetch never stalls the engine's ticker;
// the engine just keeps using the previous samples until new ones land.
type Sampler struct {
	engine   *predict.Engine
	provider Provider
	opts     SamplerOptions

	cancel   context.CancelFunc
	done     chan struct{}
	lastWarn time.Time
	lg       *log.Logger
}

func NewSampler(engine *predict.Engine, provider Provider, opts SamplerOptions, lg *log.Logger) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sampler{
		engine:   engine,
		provider: provider,
		opts:     opts,
		cancel:   cancel,
		done:     make(chan struct{}),
		lg:       lg,
	}
	go s.run(ctx)
	return s
}

// Stop shuts down the sampling goroutine and waits for it to exit. The
// engine keeps the samples it already has.
func (s *Sampler) Stop() {
	s.cancel()
	<-s.done
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		states := s.engine.View()
		samples := make(map[string]float32, len(states))
		for callsign, state := range states {
			elev, err := s.provider.Elevation(ctx, state.Position)
			if err != nil {
				// Skip the aircraft this round; the engine falls back to
				// its previous sample or the reference elevation.
				if time.Since(s.lastWarn) > 10*time.Second {
					s.lg.Warnf("terrain: %s at %s: %v", callsign, state.Position.DDString(), err)
					s.lastWarn = time.Now()
				}
				continue
			}
			samples[callsign] = elev
		}

		s.engine.SetTerrainSamples(samples, s.opts.GeoidOffset, s.opts.ReferenceElevation)
	}
}
