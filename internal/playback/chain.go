package playback

import "math"

// Chain is the sample-processing graph applied to every playback buffer:
// DC-blocking filter, soft-knee limiter, then a gain stage. Filter state
// carries across buffers so consecutive fragments stay continuous.
type Chain struct {
	dc      dcBlocker
	limiter limiter
	gain    float64
}

// NewChain builds the default output chain with the given linear gain
func NewChain(gain float64) *Chain {
	if gain <= 0 {
		gain = 1.0
	}
	return &Chain{
		dc:      dcBlocker{r: 0.995},
		limiter: limiter{threshold: 0.9},
		gain:    gain,
	}
}

// Process runs the chain over samples in place and returns the slice
func (c *Chain) Process(samples []float64) []float64 {
	c.dc.process(samples)
	for i, s := range samples {
		samples[i] = c.limiter.apply(s * c.gain)
	}
	return samples
}

// dcBlocker is a first-order high-pass filter removing DC offset:
// y[n] = x[n] - x[n-1] + r*y[n-1]
type dcBlocker struct {
	r       float64
	prevIn  float64
	prevOut float64
}

func (d *dcBlocker) process(samples []float64) {
	for i, x := range samples {
		y := x - d.prevIn + d.r*d.prevOut
		d.prevIn = x
		d.prevOut = y
		samples[i] = y
	}
}

// limiter soft-clips samples above the threshold so hot fragments cannot
// produce digital clipping at the sink
type limiter struct {
	threshold float64
}

func (l limiter) apply(s float64) float64 {
	t := l.threshold
	abs := math.Abs(s)
	if abs <= t {
		return s
	}
	headroom := 1.0 - t
	shaped := t + headroom*math.Tanh((abs-t)/headroom)
	if s < 0 {
		return -shaped
	}
	return shaped
}
