package engine

// Buffer is one playback buffer of normalized samples in [-1, 1)
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the buffer's playback duration in seconds
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Output is the audio graph the engine schedules buffers into. Now returns
// the current position of the audio clock in seconds; Play schedules a
// buffer to start at an absolute clock time and invokes onEnded exactly
// once when its playback finishes. Flush drops everything scheduled but
// not yet played.
//
// Implementations live in internal/playback; tests drive a manual clock.
type Output interface {
	Now() float64
	Play(buf Buffer, when float64, onEnded func()) error
	Flush()
	Close() error
}
