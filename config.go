// config.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"encoding/json"
	"io"
	"os"
	"path"

	"github.com/towercab/towerview/pkg/log"
	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/server"
	"github.com/towercab/towerview/pkg/terrain"
)

const currentConfigVersion = 2

// Config holds the persistent settings, stored as JSON in the user config
// directory. Absent fields keep their defaults, so a hand-edited file only
// needs the settings it changes.
type Config struct {
	Version int

	// Viewpoint: the feed is filtered to a disc around Center when
	// RadiusNM is positive, and terrain tiles are prefetched there.
	Center   math.Point2LL
	RadiusNM float32

	// Vertical references for the ground clamp, both in feet: the assumed
	// ground height for aircraft without a terrain sample yet and the
	// local offset between the elevation data and the feed's MSL.
	FieldElevation float32
	GeoidOffset    float32

	TerrainZoom      int
	TerrainDiskCache bool

	OrientationEmulation bool
	OrientationIntensity float32

	HTTPPort int
}

func configFilePath(lg *log.Logger) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		lg.Errorf("Unable to find user config dir: %v", err)
		dir = "."
	}

	dir = path.Join(dir, "TowerView")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		lg.Errorf("%s: unable to make directory for config file: %v", dir, err)
	}

	return path.Join(dir, "config.json")
}

func defaultConfig() *Config {
	return &Config{
		Version:              currentConfigVersion,
		RadiusNM:             40,
		TerrainZoom:          terrain.DefaultZoom,
		TerrainDiskCache:     true,
		OrientationEmulation: true,
		OrientationIntensity: 1,
		HTTPPort:             server.DefaultPort,
	}
}

func (c *Config) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(c)
}

func (c *Config) Save(lg *log.Logger) error {
	fn := configFilePath(lg)
	lg.Infof("Saving config to: %s", fn)

	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()

	return c.Encode(f)
}

// upgrade patches configs written by older versions and repairs values
// that would misbehave downstream.
func (c *Config) upgrade() {
	if c.Version < 2 {
		// Version 1 predates the orientation intensity setting.
		if c.OrientationIntensity == 0 {
			c.OrientationIntensity = 1
		}
	}
	if c.TerrainZoom < 1 || c.TerrainZoom > 15 {
		c.TerrainZoom = terrain.DefaultZoom
	}
	c.Version = currentConfigVersion
}

// LoadOrMakeDefaultConfig reads the config file, writing out a fresh
// default one on first run. A corrupt file is reported via the returned
// error and the defaults are used, leaving the file in place to fix.
func LoadOrMakeDefaultConfig(lg *log.Logger) (*Config, error) {
	fn := configFilePath(lg)
	lg.Infof("Loading config from: %s", fn)

	contents, err := os.ReadFile(fn)
	if err != nil {
		config := defaultConfig()
		if err := config.Save(lg); err != nil {
			lg.Errorf("%s: unable to write default config: %v", fn, err)
		}
		return config, nil
	}

	config := defaultConfig()
	if err := json.Unmarshal(contents, config); err != nil {
		return defaultConfig(), err
	}

	config.upgrade()
	return config, nil
}
