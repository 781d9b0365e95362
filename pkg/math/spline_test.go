// pkg/math/spline_test.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"testing"
)

func TestHermite2fEndpoints(t *testing.T) {
	p0 := [2]float32{-73.78, 40.64}
	p1 := [2]float32{-73.70, 40.70}
	m0 := [2]float32{0.05, 0.01}
	m1 := [2]float32{0.02, 0.04}

	if p := Hermite2f(0, p0, m0, p1, m1); p != p0 {
		t.Errorf("Hermite2f(0) -> %v, expected %v", p, p0)
	}
	if p := Hermite2f(1, p0, m0, p1, m1); Abs(p[0]-p1[0]) > 1e-6 || Abs(p[1]-p1[1]) > 1e-6 {
		t.Errorf("Hermite2f(1) -> %v, expected %v", p, p1)
	}
}

func TestHermite2fTangent(t *testing.T) {
	p0 := [2]float32{0, 0}
	p1 := [2]float32{1, 1}
	m0 := [2]float32{2, 0}
	m1 := [2]float32{0, 2}

	// The derivative at t=0 is m0; check against a forward difference.
	const h = 1e-3
	p := Hermite2f(h, p0, m0, p1, m1)
	dx, dy := p[0]/h, p[1]/h
	if Abs(dx-m0[0]) > 0.01 || Abs(dy-m0[1]) > 0.01 {
		t.Errorf("derivative at 0 -> (%g, %g), expected %v", dx, dy, m0)
	}
}

func TestHermite2fStraightLine(t *testing.T) {
	// Endpoints one unit apart with matching unit tangents degenerate to
	// uniform linear motion.
	p0 := [2]float32{0, 0}
	p1 := [2]float32{1, 0}
	m := [2]float32{1, 0}

	for _, tc := range []float32{0.25, 0.5, 0.75} {
		p := Hermite2f(tc, p0, m, p1, m)
		if Abs(p[0]-tc) > 1e-6 || Abs(p[1]) > 1e-6 {
			t.Errorf("Hermite2f(%g) -> %v, expected (%g, 0)", tc, p, tc)
		}
	}
}

func TestSmoothstep(t *testing.T) {
	type ss struct {
		in, out float32
	}

	for _, c := range []ss{{0, 0}, {1, 1}, {0.5, 0.5}, {-1, 0}, {2, 1}} {
		if got := Smoothstep(c.in); Abs(got-c.out) > 1e-6 {
			t.Errorf("Smoothstep(%g) -> %g, expected %g", c.in, got, c.out)
		}
	}

	// Monotonic on [0,1].
	prev := float32(0)
	for x := float32(0); x <= 1; x += 0.01 {
		if v := Smoothstep(x); v < prev {
			t.Errorf("Smoothstep(%g) -> %g, decreased from %g", x, v, prev)
		} else {
			prev = v
		}
	}
}

func TestEaseInOut(t *testing.T) {
	for _, c := range [][2]float32{{0, 0}, {1, 1}, {0.5, 0.5}} {
		if got := EaseInOut(c[0]); Abs(got-c[1]) > 1e-6 {
			t.Errorf("EaseInOut(%g) -> %g, expected %g", c[0], got, c[1])
		}
	}

	// Gentler than Smoothstep: closer to the linear ramp near the ends.
	if EaseInOut(0.1) <= Smoothstep(0.1) {
		t.Errorf("EaseInOut(0.1)=%g is not above Smoothstep(0.1)=%g",
			EaseInOut(0.1), Smoothstep(0.1))
	}
	if EaseInOut(0.9) >= Smoothstep(0.9) {
		t.Errorf("EaseInOut(0.9)=%g is not below Smoothstep(0.9)=%g",
			EaseInOut(0.9), Smoothstep(0.9))
	}
}
