// main.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Towerview turns the sparse aircraft position reports of the VATSIM
// network (or a recorded archive of them) into smooth 60 Hz state,
// complete with attitude and ground contact, and serves it over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/log"
	"github.com/towercab/towerview/pkg/predict"
	"github.com/towercab/towerview/pkg/server"
	"github.com/towercab/towerview/pkg/terrain"
	"github.com/towercab/towerview/pkg/util"
)

var (
	logLevel    = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir      = flag.String("logdir", "", "log file directory")
	httpPort    = flag.Int("port", 0, "HTTP server port (overrides the config file)")
	replayFile  = flag.String("replay", "", "play back a recorded track archive instead of the live feed")
	replayRate  = flag.Float64("replayrate", 1, "replay speed multiplier")
	flatTerrain = flag.Bool("flatterrain", false, "clamp to the configured field elevation instead of elevation tiles")
)

func main() {
	flag.Parse()

	lg := log.New(true, *logLevel, *logDir)

	go func() {
		t := time.Tick(15 * time.Second)
		for {
			<-t
			// Try to more aggressively return freed memory to the OS.
			debug.FreeOSMemory()
		}
	}()

	if err := util.CacheCullObjects(512 * 1024 * 1024); err != nil {
		lg.Warnf("culling cache: %v", err)
	}

	config, configErr := LoadOrMakeDefaultConfig(lg)
	if configErr != nil {
		// Keep running on the defaults; the bad file is left in place for
		// the user to fix.
		fmt.Fprintf(os.Stderr, "Configuration file is corrupt: %v\n", configErr)
	}

	source, err := makeSource(config, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	engine := predict.New(source, lg)
	engine.SetOrientationEmulation(config.OrientationEmulation, config.OrientationIntensity)

	sampler := terrain.NewSampler(engine, makeTerrainProvider(config, lg), terrain.SamplerOptions{
		GeoidOffset:        config.GeoidOffset,
		ReferenceElevation: config.FieldElevation,
	}, lg)

	port := config.HTTPPort
	if *httpPort != 0 {
		port = *httpPort
	}
	srv, err := server.New(engine, server.Options{Port: port}, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("towerview serving on port %d\n", srv.Port())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	lg.Infof("shutting down")
	srv.Shutdown()
	sampler.Stop()
	source.Stop()
	engine.Destroy()
}

func makeSource(config *Config, lg *log.Logger) (feed.Source, error) {
	if *replayFile != "" {
		f, err := os.Open(*replayFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return feed.NewReplaySource(f, float32(*replayRate), lg)
	}

	return feed.NewVATSIMSource(feed.VATSIMOptions{
		Center:            config.Center,
		RadiusNM:          config.RadiusNM,
		FetchTransceivers: true,
	}, lg), nil
}

func makeTerrainProvider(config *Config, lg *log.Logger) terrain.Provider {
	if *flatTerrain {
		return terrain.FlatProvider{Feet: config.FieldElevation}
	}

	tp, err := terrain.NewTileProvider(context.Background(), terrain.TileProviderOptions{
		Zoom:      config.TerrainZoom,
		DiskCache: config.TerrainDiskCache,
	}, lg)
	if err != nil {
		lg.Errorf("elevation tiles unavailable, falling back to the field elevation: %v", err)
		return terrain.FlatProvider{Feet: config.FieldElevation}
	}

	if !config.Center.IsZero() && config.RadiusNM > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := tp.Prefetch(ctx, config.Center, config.RadiusNM); err != nil {
				lg.Warnf("terrain prefetch: %v", err)
			}
		}()
	}
	return tp
}
