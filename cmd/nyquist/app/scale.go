package app

import (
	"math"
)

// Axis maps values of one dimension onto a pixel range.
type Axis struct {
	Min, Max float64
	Step     float64
}

// NewAxis returns an axis covering [lo..hi] with bounds rounded outwards to
// a nice step, aiming for about ticks labels. A degenerate range is widened
// around its value.
func NewAxis(lo, hi float64, ticks int) Axis {
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi-lo == 0 {
		pad := math.Abs(lo) * 0.1
		if pad == 0 {
			pad = 1
		}
		lo, hi = lo-pad, hi+pad
	}

	step := NiceStep(hi-lo, ticks)
	return Axis{
		Min:  math.Floor(lo/step) * step,
		Max:  math.Ceil(hi/step) * step,
		Step: step,
	}
}

// NiceStep returns a step of 1, 2 or 5 times a power of ten splitting span
// into roughly n parts.
func NiceStep(span float64, n int) float64 {
	if n < 1 {
		n = 1
	}
	rough := span / float64(n)
	mag := math.Pow(10, math.Floor(math.Log10(rough)))

	const eps = 1e-9

	switch norm := rough / mag; {
	case norm <= 1+eps:
		return mag
	case norm <= 2+eps:
		return 2 * mag
	case norm <= 5+eps:
		return 5 * mag
	default:
		return 10 * mag
	}
}

// Ticks returns the multiples of Step between Min and Max.
func (a Axis) Ticks() []float64 {
	const eps = 1e-9

	var ticks []float64
	first := math.Ceil(a.Min/a.Step - eps)
	last := math.Floor(a.Max/a.Step + eps)
	for i := first; i <= last; i++ {
		ticks = append(ticks, i*a.Step)
	}
	return ticks
}

// Pixel maps v onto [0..size].
func (a Axis) Pixel(v float64, size int) int {
	return int(math.Round((v - a.Min) / (a.Max - a.Min) * float64(size)))
}

// Equalize widens one of the axes, keeping it centred, so that a pixel
// represents the same impedance on both. Both axes get the larger step.
func Equalize(x, y Axis, width, height int) (Axis, Axis) {
	xPer := (x.Max - x.Min) / float64(width)
	yPer := (y.Max - y.Min) / float64(height)

	switch {
	case xPer > yPer:
		extra := xPer*float64(height) - (y.Max - y.Min)
		y.Min -= extra / 2
		y.Max += extra / 2
	case yPer > xPer:
		extra := yPer*float64(width) - (x.Max - x.Min)
		x.Min -= extra / 2
		x.Max += extra / 2
	}

	step := max(x.Step, y.Step)
	x.Step, y.Step = step, step
	return x, y
}
