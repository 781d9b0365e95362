// pkg/math/spline.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

///////////////////////////////////////////////////////////////////////////
// Cubic Hermite splines and easing curves

// Hermite2f evaluates the cubic Hermite spline with endpoints p0 and p1
// and tangents m0 and m1 at t in [0,1]. The curve passes through p0 at
// t=0 and p1 at t=1 with derivatives m0 and m1 there; the tangents are
// expressed per unit t, so a tangent corresponding to a velocity must be
// scaled by the duration of the segment.
func Hermite2f(t float32, p0, m0, p1, m1 [2]float32) [2]float32 {
	t2 := t * t
	t3 := t2 * t

	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	p := Scale2f(p0, h00)
	p = Add2f(p, Scale2f(m0, h10))
	p = Add2f(p, Scale2f(p1, h01))
	p = Add2f(p, Scale2f(m1, h11))
	return p
}

// Smoothstep maps [0,1] to [0,1] with the cubic 3t^2-2t^3; the slope is
// zero at both endpoints. Values outside [0,1] are clamped.
func Smoothstep(t float32) float32 {
	t = Clamp(t, 0, 1)
	return t * t * (3 - 2*t)
}

// EaseInOut maps [0,1] to [0,1], blending the linear ramp with
// Smoothstep: the slope is 1/2 at the endpoints and 5/4 at the midpoint.
// It eases more gently than Smoothstep, which suits quantities that are
// re-blended every time a new data point arrives.
func EaseInOut(t float32) float32 {
	t = Clamp(t, 0, 1)
	return 0.5 * (t + Smoothstep(t))
}
