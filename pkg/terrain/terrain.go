// pkg/terrain/terrain.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package terrain supplies ground elevation for the height correction in
// pkg/predict: a tile-based provider backed by the public Mapzen Terrarium
// dataset and a sampler that feeds per-aircraft terrain heights into the
// engine at a few Hz.
package terrain

import (
	"context"

	"github.com/towercab/towerview/pkg/math"
)

// Provider returns the terrain height in feet at a position, in whatever
// vertical datum the underlying data uses. Implementations must be safe
// for concurrent calls.
type Provider interface {
	Elevation(ctx context.Context, p math.Point2LL) (float32, error)
}

// FlatProvider reports the same elevation everywhere. It stands in when
// no tile source is configured, keeping the ground clamp anchored at the
// field elevation.
type FlatProvider struct {
	Feet float32
}

func (f FlatProvider) Elevation(context.Context, math.Point2LL) (float32, error) {
	return f.Feet, nil
}
