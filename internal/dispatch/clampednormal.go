// Package dispatch implements the adaptive load driver for the primary
// workload: a concurrency-modulated worker pool that converges on
// a target RPS under a latency ceiling through two interacting PID
// loops.
package dispatch

import "math/rand"

// ClampedNormal draws from a normal distribution and redraws from a
// uniform distribution over [Left, Right] whenever the normal draw falls
// outside those bounds. This degenerates to uniform as Stdev grows,
// which is required behavior: there is no hard rejection bias toward
// the mean.
type ClampedNormal struct {
	Mean  float64
	Stdev float64
	Left  float64
	Right float64
}

// NewClampedNormal builds a ClampedNormal, swapping left/right if given
// in the wrong order.
func NewClampedNormal(mean, stdev, left, right float64) ClampedNormal {
	if left > right {
		left, right = right, left
	}
	return ClampedNormal{Mean: mean, Stdev: stdev, Left: left, Right: right}
}

// Draw samples one value.
func (c ClampedNormal) Draw(rng *rand.Rand) float64 {
	if c.Left >= c.Right {
		return c.Left
	}
	v := rng.NormFloat64()*c.Stdev + c.Mean
	if v < c.Left || v > c.Right {
		return c.Left + rng.Float64()*(c.Right-c.Left)
	}
	return v
}
