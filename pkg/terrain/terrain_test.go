// pkg/terrain/terrain_test.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package terrain

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/predict"
)

func TestTileCoords(t *testing.T) {
	// The prime meridian at the equator is the corner shared by the four
	// center tiles.
	key, px, py := tileCoords(math.Point2LL{0, 0}, 1)
	if key != (tileKey{1, 1, 1}) {
		t.Errorf("origin at zoom 1: got tile %+v, expected {1 1 1}", key)
	}
	if px != 0 || py != 0 {
		t.Errorf("origin should land on the tile corner, got pixel (%v, %v)", px, py)
	}

	// The antimeridian wraps around to tile x=0 from either side.
	for _, lon := range []float32{-180, 180} {
		key, _, _ := tileCoords(math.Point2LL{lon, 0}, 1)
		if key.x != 0 {
			t.Errorf("longitude %v: got tile x=%d, expected 0", lon, key.x)
		}
	}

	// Polar latitudes clamp into the valid tile range instead of running
	// off the top or bottom of the pyramid.
	for _, lat := range []float32{89.9, -89.9} {
		key, _, py := tileCoords(math.Point2LL{10, lat}, 3)
		if key.y < 0 || key.y > 7 {
			t.Errorf("latitude %v: tile y=%d out of range at zoom 3", lat, key.y)
		}
		if py < 0 || py >= tileSize {
			t.Errorf("latitude %v: pixel y=%v out of range", lat, py)
		}
	}

	// East is increasing x, north is decreasing y.
	a, apx, _ := tileCoords(math.Point2LL{-122.375, 37.6188}, 13)
	b, bpx, _ := tileCoords(math.Point2LL{-122.370, 37.6188}, 13)
	if bx, ax := float64(b.x)*tileSize+bpx, float64(a.x)*tileSize+apx; bx <= ax {
		t.Errorf("moving east did not increase x: %v vs %v", ax, bx)
	}
	c, _, cpy := tileCoords(math.Point2LL{-122.375, 37.6288}, 13)
	_, _, apy := tileCoords(math.Point2LL{-122.375, 37.6188}, 13)
	if cy, ay := float64(c.y)*tileSize+cpy, float64(a.y)*tileSize+apy; cy >= ay {
		t.Errorf("moving north did not decrease y: %v vs %v", ay, cy)
	}
}

func terrariumColor(meters float32) color.RGBA {
	v := int((meters + terrariumBias) * 256)
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

func TestDecodeTerrarium(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	for y := 0; y < tileSize; y++ {
		for x := 0; x < tileSize; x++ {
			img.SetRGBA(x, y, terrariumColor(float32(x)))
		}
	}
	img.SetRGBA(7, 3, terrariumColor(-11))     // below sea level
	img.SetRGBA(9, 3, terrariumColor(8848.25)) // fractional meters

	elev, err := decodeTerrarium(img)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	for _, c := range []struct {
		x, y     int
		expected float32
	}{
		{0, 0, 0},
		{100, 50, 100},
		{255, 255, 255},
		{7, 3, -11},
		{9, 3, 8848.25},
	} {
		if got := elev[c.x+c.y*tileSize]; math.Abs(got-c.expected) > 0.01 {
			t.Errorf("pixel (%d,%d): got %v meters, expected %v", c.x, c.y, got, c.expected)
		}
	}

	if _, err := decodeTerrarium(image.NewRGBA(image.Rect(0, 0, 128, 128))); err == nil {
		t.Errorf("expected an error for a wrong-sized tile")
	}
}

func TestTileSample(t *testing.T) {
	// A pure x gradient: elevation equals the pixel's x index.
	td := &tileData{Elev: make([]float32, tileSize*tileSize)}
	for y := 0; y < tileSize; y++ {
		for x := 0; x < tileSize; x++ {
			td.Elev[x+y*tileSize] = float32(x)
		}
	}

	for _, c := range []struct {
		px, py   float64
		expected float32
	}{
		{10.5, 40.5, 10},   // pixel center
		{11, 40.5, 10.5},   // halfway between columns 10 and 11
		{0.1, 3, 0},        // clamped at the west edge
		{255.9, 200, 255},  // clamped at the east edge
		{128.25, 0.1, 127.75},
	} {
		if got := td.sample(c.px, c.py); math.Abs(got-c.expected) > 1e-3 {
			t.Errorf("sample(%v, %v): got %v, expected %v", c.px, c.py, got, c.expected)
		}
	}
}

func TestFlatProvider(t *testing.T) {
	p := FlatProvider{Feet: 433}
	for _, pos := range []math.Point2LL{{0, 0}, {-122, 47}, {151, -33}} {
		elev, err := p.Elevation(context.Background(), pos)
		if err != nil || elev != 433 {
			t.Errorf("FlatProvider at %v: got %v, %v", pos, elev, err)
		}
	}
}

func TestTileProviderRejectsBadZoom(t *testing.T) {
	for _, zoom := range []int{-1, 16, 99} {
		if _, err := NewTileProvider(context.Background(), TileProviderOptions{Zoom: zoom}, nil); err == nil {
			t.Errorf("zoom %d should have been rejected", zoom)
		}
	}
}

type stubSource struct {
	set feed.Set
	now time.Time
}

func (s *stubSource) CurrentSet() feed.Set { return s.set }
func (s *stubSource) Now() time.Time       { return s.now }
func (s *stubSource) Stop()                {}

func TestSamplerFeedsEngine(t *testing.T) {
	epoch := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	obs := &feed.Observation{
		Callsign:    "GND1",
		Position:    math.Point2LL{-122.375, 37.6188},
		Altitude:    0,
		Groundspeed: 0,
		Heading:     280,
		Time:        epoch,
	}
	src := &stubSource{
		set: feed.Set{
			Current: map[string]*feed.Observation{"GND1": obs},
			Fetched: epoch,
		},
		now: epoch,
	}

	e := predict.New(src, nil)
	defer e.Destroy()

	s := NewSampler(e, FlatProvider{Feet: 80}, SamplerOptions{Interval: 5 * time.Millisecond}, nil)
	defer s.Stop()

	// Step the engine until the sampler's terrain height shows up in the
	// corrected altitude: clamped to terrain plus the gear offset.
	now := epoch
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.Step(now)
		now = now.Add(predict.DefaultTickInterval)

		st := e.View()["GND1"]
		if st != nil && st.OnGround && math.Abs(st.Altitude-85) < 0.01 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("sampler terrain height never reached the engine: %+v", e.View()["GND1"])
}
