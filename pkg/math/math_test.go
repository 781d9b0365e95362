// pkg/math/math_test.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"testing"
)

func TestHeadingDifference(t *testing.T) {
	type hd struct {
		a, b, d float32
	}

	headings := []hd{
		{0, 90, 90},
		{5, 355, 10},
		{90, 270, 180},
		{120, 150, 30},
		{350, 10, 20},
		{10, 350, 20},
		{0, 0, 0},
	}

	for _, h := range headings {
		if d := HeadingDifference(h.a, h.b); d != h.d {
			t.Errorf("HeadingDifference(%g, %g) -> %g, expected %g", h.a, h.b, d, h.d)
		}
		if d := HeadingDifference(h.b, h.a); d != h.d {
			t.Errorf("HeadingDifference(%g, %g) -> %g, expected %g", h.b, h.a, d, h.d)
		}
	}
}

func TestHeadingSignedTurn(t *testing.T) {
	type turn struct {
		cur, target, expect float32
	}

	turns := []turn{
		{350, 10, 20},   // right turn through north
		{10, 350, -20},  // left turn through north
		{90, 120, 30},   // right
		{120, 90, -30},  // left
		{180, 180, 0},   // no turn
		{359, 1, 2},     // right across the wrap
		{45, 225, 180},  // exactly opposite
	}

	for _, tr := range turns {
		if got := HeadingSignedTurn(tr.cur, tr.target); Abs(got-tr.expect) > 0.001 {
			t.Errorf("HeadingSignedTurn(%g, %g) -> %g, expected %g", tr.cur, tr.target, got, tr.expect)
		}
	}
}

func TestLerpHeading(t *testing.T) {
	if h := LerpHeading(0, 350, 10); Abs(h-350) > 0.001 {
		t.Errorf("LerpHeading(0, 350, 10) -> %g, expected 350", h)
	}
	if h := LerpHeading(1, 350, 10); Abs(h-10) > 0.001 {
		t.Errorf("LerpHeading(1, 350, 10) -> %g, expected 10", h)
	}
	if h := LerpHeading(0.5, 350, 10); Abs(h) > 0.001 && Abs(h-360) > 0.001 {
		t.Errorf("LerpHeading(0.5, 350, 10) -> %g, expected 0", h)
	}

	// Interpolating 350 -> 10 must stay within 20 degrees of north the
	// whole way; it never swings through 180.
	for x := float32(0); x <= 1; x += 0.05 {
		h := LerpHeading(x, 350, 10)
		if HeadingDifference(h, 0) > 20 {
			t.Errorf("LerpHeading(%g, 350, 10) -> %g, left the short arc", x, h)
		}
	}
}

func TestNormalizeHeading(t *testing.T) {
	type nh struct {
		in, out float32
	}

	for _, c := range []nh{{0, 0}, {360, 0}, {-10, 350}, {370, 10}, {720, 0}, {-90, 270}, {-725, 355}} {
		if got := NormalizeHeading(c.in); Abs(got-c.out) > 0.001 {
			t.Errorf("NormalizeHeading(%g) -> %g, expected %g", c.in, got, c.out)
		}
	}
}

func TestOffset2LL(t *testing.T) {
	// One nm due east at the equator moves 1/60 degree of longitude.
	p := Offset2LL(Point2LL{0, 0}, 90, 1, 60)
	if Abs(p[0]-1.0/60) > 1e-5 || Abs(p[1]) > 1e-5 {
		t.Errorf("Offset2LL east 1nm -> %v, expected (0.016667, 0)", p)
	}

	// One nm due north moves 1/60 degree of latitude at any longitude scale.
	p = Offset2LL(Point2LL{-73.7, 40.6}, 0, 1, NMPerLongitudeAt(40.6))
	if Abs(p[1]-(40.6+1.0/60)) > 1e-4 || Abs(p[0]-(-73.7)) > 1e-4 {
		t.Errorf("Offset2LL north 1nm -> %v", p)
	}
}

func TestGreatCircleOffset2LL(t *testing.T) {
	// 60 nm east from the equator: just under one degree of longitude on
	// the spherical earth model.
	p := GreatCircleOffset2LL(Point2LL{0, 0}, 90, 60)
	if Abs(p[0]-0.9993) > 0.01 || Abs(p[1]) > 0.001 {
		t.Errorf("GreatCircleOffset2LL east 60nm -> %v", p)
	}

	p = GreatCircleOffset2LL(Point2LL{0, 0}, 0, 60)
	if Abs(p[1]-0.9993) > 0.01 || Abs(p[0]) > 0.001 {
		t.Errorf("GreatCircleOffset2LL north 60nm -> %v", p)
	}

	// Zero distance is the identity.
	p = GreatCircleOffset2LL(Point2LL{-73.7, 40.6}, 123, 0)
	if Abs(p[0]-(-73.7)) > 1e-5 || Abs(p[1]-40.6) > 1e-5 {
		t.Errorf("GreatCircleOffset2LL zero distance -> %v", p)
	}

	// The result must agree with the flat-earth offset over a short hop.
	flat := Offset2LL(Point2LL{-73.7, 40.6}, 45, 2, NMPerLongitudeAt(40.6))
	gc := GreatCircleOffset2LL(Point2LL{-73.7, 40.6}, 45, 2)
	if d := NMDistance2LL(flat, gc); d > 0.05 {
		t.Errorf("flat vs great-circle offset disagree by %g nm", d)
	}
}

func TestNMDistance2LL(t *testing.T) {
	// One degree of latitude is 60 nm, within the tolerance of the
	// spherical model.
	d := NMDistance2LL(Point2LL{0, 0}, Point2LL{0, 1})
	if Abs(d-60) > 0.2 {
		t.Errorf("NMDistance2LL 1 degree latitude -> %g nm, expected ~60", d)
	}

	if d := NMDistance2LL(Point2LL{-73.7, 40.6}, Point2LL{-73.7, 40.6}); d != 0 {
		t.Errorf("NMDistance2LL of identical points -> %g, expected 0", d)
	}
}

func TestLL2NMRoundTrip(t *testing.T) {
	pts := []Point2LL{{-73.779, 40.639}, {0, 0}, {151.177, -33.946}}
	for _, p := range pts {
		nmPerLongitude := NMPerLongitudeAt(p[1])
		q := NM2LL(LL2NM(p, nmPerLongitude), nmPerLongitude)
		if Abs(p[0]-q[0]) > 1e-4 || Abs(p[1]-q[1]) > 1e-4 {
			t.Errorf("LL2NM/NM2LL round trip %v -> %v", p, q)
		}
	}
}
