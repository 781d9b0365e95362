// pkg/terrain/tiles.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package terrain

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	gomath "math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/towercab/towerview/pkg/log"
	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/util"
)

const (
	// The Mapzen Terrarium tiles on the AWS Open Data registry; the bucket
	// is public and read without credentials.
	// https://registry.opendata.aws/terrain-tiles/
	defaultTileBucket = "elevation-tiles-prod"
	tileRegion        = "us-east-1"

	tileSize = 256

	// Terrarium encodes elevation in meters as (R*256 + G + B/256) - 32768.
	terrariumBias = 32768

	// Zoom 13 is about 19m per pixel at the equator, plenty for deciding
	// whether an aircraft is on the ground.
	DefaultZoom = 13

	// Web Mercator only extends so far; past this the y tile math blows up.
	maxMercatorLatitude = 85.05112878

	tileCacheTTL = 30 * time.Minute
)

// TileProviderOptions configures a TileProvider. The zero value fetches
// Terrarium tiles anonymously at DefaultZoom with a modest in-memory cache.
type TileProviderOptions struct {
	Bucket string // defaults to the public Terrarium bucket
	Zoom   int    // slippy map zoom level, defaults to DefaultZoom

	// Credentials for a private tile mirror. Both empty means anonymous
	// access, which is what the public bucket wants.
	AccessKey, SecretKey string

	CacheTiles int  // in-memory tile cache capacity, defaults to 64
	DiskCache  bool // also keep decoded tiles in the user cache directory
}

// TileProvider implements Provider by bilinearly sampling Terrarium
// elevation tiles fetched from S3. Decoded tiles are held in an expiring
// LRU and optionally mirrored to the disk cache, so steady-state lookups
// never touch the network.
type TileProvider struct {
	client *s3.Client
	bucket string
	zoom   int

	mu    sync.Mutex
	cache *expirable.LRU[tileKey, *tileData]

	diskCache bool

	hits, misses, fetches atomic.Int64

	lg *log.Logger
}

type tileKey struct {
	z, x, y int
}

// tileData is a decoded tile, also the disk cache object. Elevations are
// meters, row-major.
type tileData struct {
	Z, X, Y int
	Elev    []float32
}

func NewTileProvider(ctx context.Context, opts TileProviderOptions, lg *log.Logger) (*TileProvider, error) {
	if opts.Bucket == "" {
		opts.Bucket = defaultTileBucket
	}
	if opts.Zoom == 0 {
		opts.Zoom = DefaultZoom
	}
	if opts.Zoom < 1 || opts.Zoom > 15 {
		return nil, fmt.Errorf("zoom %d out of range 1-15", opts.Zoom)
	}
	if opts.CacheTiles == 0 {
		opts.CacheTiles = 64
	}

	var credsProvider aws.CredentialsProvider = aws.AnonymousCredentials{}
	if opts.AccessKey != "" {
		credsProvider = credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(tileRegion),
		config.WithCredentialsProvider(credsProvider))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return &TileProvider{
		client:    s3.NewFromConfig(cfg),
		bucket:    opts.Bucket,
		zoom:      opts.Zoom,
		cache:     expirable.NewLRU[tileKey, *tileData](opts.CacheTiles, nil, tileCacheTTL),
		diskCache: opts.DiskCache,
		lg:        lg,
	}, nil
}

func (t *TileProvider) Elevation(ctx context.Context, p math.Point2LL) (float32, error) {
	key, px, py := tileCoords(p, t.zoom)

	td, err := t.ensureTile(ctx, key)
	if err != nil {
		return 0, err
	}

	return td.sample(px, py) * math.MetersToFeet, nil
}

// Prefetch warms the caches with every tile within radius nm of center,
// a few at a time. Intended for startup, before aircraft start asking.
func (t *TileProvider) Prefetch(ctx context.Context, center math.Point2LL, radius float32) error {
	dlat := radius / 60
	dlon := radius / math.Max(math.NMPerLongitudeAt(center.Latitude()), 1)

	k0, _, _ := tileCoords(math.Point2LL{center[0] - dlon, center[1] + dlat}, t.zoom)
	k1, _, _ := tileCoords(math.Point2LL{center[0] + dlon, center[1] - dlat}, t.zoom)

	n := (k1.x - k0.x + 1) * (k1.y - k0.y + 1)
	if n > 256 {
		return fmt.Errorf("prefetch of %d tiles refused; reduce the radius or zoom", n)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for x := k0.x; x <= k1.x; x++ {
		for y := k0.y; y <= k1.y; y++ {
			key := tileKey{t.zoom, x, y}
			g.Go(func() error {
				_, err := t.ensureTile(ctx, key)
				return err
			})
		}
	}
	return g.Wait()
}

// CacheStats reports in-memory cache hits, misses, and how many of the
// misses went all the way to S3 rather than being satisfied from disk.
func (t *TileProvider) CacheStats() (hits, misses, fetches int64) {
	return t.hits.Load(), t.misses.Load(), t.fetches.Load()
}

func (t *TileProvider) ensureTile(ctx context.Context, key tileKey) (*tileData, error) {
	t.mu.Lock()
	td, ok := t.cache.Get(key)
	t.mu.Unlock()
	if ok {
		t.hits.Add(1)
		return td, nil
	}
	t.misses.Add(1)

	// Concurrent misses on the same tile may each fetch it; the extra Add
	// is harmless and misses are rare once the cache is warm.
	td, err := t.loadTile(ctx, key)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.cache.Add(key, td)
	t.mu.Unlock()
	return td, nil
}

func (t *TileProvider) loadTile(ctx context.Context, key tileKey) (*tileData, error) {
	diskPath := fmt.Sprintf("terrain/%d-%d-%d.msgpack", key.z, key.x, key.y)
	if t.diskCache {
		var td tileData
		if _, err := util.CacheRetrieveObject(diskPath, &td); err == nil && len(td.Elev) == tileSize*tileSize {
			return &td, nil
		}
	}

	t.fetches.Add(1)
	td, err := t.fetchTile(ctx, key)
	if err != nil {
		return nil, err
	}

	if t.diskCache {
		if err := util.CacheStoreObject(diskPath, td); err != nil {
			t.lg.Warnf("terrain: unable to cache tile %v: %v", key, err)
		}
	}
	return td, nil
}

func (t *TileProvider) fetchTile(ctx context.Context, key tileKey) (*tileData, error) {
	obj := fmt.Sprintf("terrarium/%d/%d/%d.png", key.z, key.x, key.y)
	t.lg.Debugf("terrain: fetching s3://%s/%s", t.bucket, obj)

	resp, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(obj),
	})
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", t.bucket, obj, err)
	}
	defer resp.Body.Close()

	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: decoding tile: %w", obj, err)
	}

	elev, err := decodeTerrarium(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", obj, err)
	}
	return &tileData{Z: key.z, X: key.x, Y: key.y, Elev: elev}, nil
}

// decodeTerrarium converts a Terrarium-encoded tile image into elevations
// in meters.
func decodeTerrarium(img image.Image) ([]float32, error) {
	b := img.Bounds()
	if b.Dx() != tileSize || b.Dy() != tileSize {
		return nil, fmt.Errorf("unexpected tile dimensions %dx%d", b.Dx(), b.Dy())
	}

	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)

	elev := make([]float32, tileSize*tileSize)
	for y := 0; y < tileSize; y++ {
		for x := 0; x < tileSize; x++ {
			px := rgba.RGBAAt(b.Min.X+x, b.Min.Y+y)
			elev[x+y*tileSize] = float32(int(px.R)*256+int(px.G)) + float32(px.B)/256 - terrariumBias
		}
	}
	return elev, nil
}

// sample bilinearly interpolates the tile at continuous pixel coordinates
// in [0,tileSize). Pixels hold the value at their center; coordinates in
// the outer half-pixel clamp to the edge row or column, so samples near
// tile boundaries degrade to nearest-row rather than reaching into the
// neighboring tile.
func (td *tileData) sample(px, py float64) float32 {
	x0 := int(gomath.Floor(px - 0.5))
	y0 := int(gomath.Floor(py - 0.5))
	dx := float32(px-0.5) - float32(x0)
	dy := float32(py-0.5) - float32(y0)

	cl := func(v int) int { return math.Clamp(v, 0, tileSize-1) }
	at := func(x, y int) float32 { return td.Elev[cl(x)+cl(y)*tileSize] }

	e0 := math.Lerp(dx, at(x0, y0), at(x0+1, y0))
	e1 := math.Lerp(dx, at(x0, y0+1), at(x0+1, y0+1))
	return math.Lerp(dy, e0, e1)
}

// tileCoords maps a position to its slippy-map tile at the given zoom and
// the continuous pixel coordinates within that tile. Latitudes beyond the
// Web Mercator limit clamp to the edge tiles.
func tileCoords(p math.Point2LL, zoom int) (tileKey, float64, float64) {
	n := float64(int(1) << zoom)

	lat := gomath.Max(-maxMercatorLatitude, gomath.Min(maxMercatorLatitude, float64(p.Latitude())))
	latRad := lat * gomath.Pi / 180

	xf := (float64(p.Longitude()) + 180) / 360 * n
	yf := (1 - gomath.Log(gomath.Tan(latRad)+1/gomath.Cos(latRad))/gomath.Pi) / 2 * n

	// Wrap longitude and clamp latitude into the valid tile range.
	xf = gomath.Mod(xf, n)
	if xf < 0 {
		xf += n
	}
	yf = gomath.Max(0, gomath.Min(gomath.Nextafter(n, 0), yf))

	tx, ty := int(gomath.Floor(xf)), int(gomath.Floor(yf))
	return tileKey{zoom, tx, ty}, (xf - float64(tx)) * tileSize, (yf - float64(ty)) * tileSize
}
