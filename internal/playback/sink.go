package playback

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tutorstream/narration-gateway/internal/audio"
	"github.com/tutorstream/narration-gateway/internal/config"
	"github.com/tutorstream/narration-gateway/internal/engine"
	"github.com/tutorstream/narration-gateway/internal/observability"
)

// WriteFunc receives paced 16-bit little-endian PCM at the output sample
// rate, one slice per pacer tick
type WriteFunc func(pcm []byte) error

var errSinkClosed = errors.New("sink closed")

type schedBuf struct {
	start   int // absolute stream position in samples
	samples []float64
	onEnded func()
}

// PacedSink is the real-time output graph. It implements engine.Output:
// scheduled buffers are resampled to the output rate, run through the
// processing chain, and emitted to the write function in fixed ticks with
// silence filling any gaps in the timeline.
//
// The audio clock is the emission position: Now() returns the number of
// seconds of audio already paced out, so a buffer scheduled at time T
// starts exactly T seconds into the stream.
type PacedSink struct {
	sampleRate int
	tick       time.Duration
	chain      *Chain
	write      WriteFunc
	staging    *audio.RingBuffer
	logger     zerolog.Logger

	mu      sync.Mutex
	pos     int // samples emitted so far
	pending []*schedBuf
	closed  bool

	done     chan struct{}
	stopOnce sync.Once
}

// NewPacedSink creates and starts a paced sink writing to write
func NewPacedSink(cfg *config.Config, write WriteFunc) *PacedSink {
	s := &PacedSink{
		sampleRate: cfg.OutputSampleRate,
		tick:       time.Duration(cfg.PacerTickMs) * time.Millisecond,
		chain:      NewChain(cfg.OutputGain),
		write:      write,
		staging:    audio.NewRingBuffer(cfg.AudioBufferSize),
		logger:     observability.WithComponent("playback"),
		done:       make(chan struct{}),
	}
	go s.loop()
	return s
}

// Now returns the audio clock position in seconds
func (s *PacedSink) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.pos) / float64(s.sampleRate)
}

// Play schedules a buffer to start at the absolute clock time when.
// onEnded fires exactly once, after the buffer's last sample is emitted.
func (s *PacedSink) Play(buf engine.Buffer, when float64, onEnded func()) error {
	samples := buf.Samples
	if buf.SampleRate != s.sampleRate {
		samples = audio.Resample(samples, buf.SampleRate, s.sampleRate)
	}
	samples = s.chain.Process(samples)

	start := int(when * float64(s.sampleRate))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	// Buffers scheduled entirely in the past still count as played
	if start < s.pos {
		start = s.pos
	}
	s.pending = append(s.pending, &schedBuf{start: start, samples: samples, onEnded: onEnded})
	sort.SliceStable(s.pending, func(i, j int) bool {
		return s.pending[i].start < s.pending[j].start
	})
	return nil
}

// Flush drops everything scheduled but not yet emitted. End callbacks for
// dropped buffers never fire; the engine rejects their utterances itself.
func (s *PacedSink) Flush() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	s.staging.Clear()
}

// Close stops the pacer. Safe to call multiple times.
func (s *PacedSink) Close() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *PacedSink) loop() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.emitTick()
		}
	}
}

// emitTick advances the stream by one tick of audio, pulling samples from
// scheduled buffers and filling gaps with silence
func (s *PacedSink) emitTick() {
	tickSamples := int(float64(s.sampleRate) * s.tick.Seconds())

	s.mu.Lock()
	out := make([]float64, 0, tickSamples)
	var finished []func()

	need := tickSamples
	for need > 0 {
		b := s.nextBuffer()
		if b == nil {
			// Nothing scheduled; the rest of the tick is silence
			out = append(out, make([]float64, need)...)
			s.pos += need
			need = 0
			break
		}

		if s.pos < b.start {
			gap := b.start - s.pos
			if gap > need {
				gap = need
			}
			out = append(out, make([]float64, gap)...)
			s.pos += gap
			need -= gap
			continue
		}

		off := s.pos - b.start
		n := len(b.samples) - off
		if n > need {
			n = need
		}
		out = append(out, b.samples[off:off+n]...)
		s.pos += n
		need -= n

		if off+n == len(b.samples) {
			if b.onEnded != nil {
				finished = append(finished, b.onEnded)
			}
			s.pending = s.pending[1:]
		}
	}
	s.mu.Unlock()

	// Callbacks run outside the lock; the engine feeds them back into its
	// own goroutine.
	for _, fn := range finished {
		fn()
	}

	pcm := audio.EncodePCM16(out)
	if n := s.staging.Write(pcm); n < len(pcm) {
		s.logger.Warn().Int("dropped", len(pcm)-n).Msg("Staging buffer overflow")
	}

	chunk := make([]byte, s.staging.Available())
	if n := s.staging.Read(chunk); n > 0 {
		if err := s.write(chunk[:n]); err != nil {
			s.logger.Warn().Err(err).Msg("Sink write failed")
		}
	}
}

// nextBuffer returns the earliest pending buffer not yet fully emitted.
// Caller holds the lock.
func (s *PacedSink) nextBuffer() *schedBuf {
	for len(s.pending) > 0 {
		b := s.pending[0]
		if b.start+len(b.samples) > s.pos {
			return b
		}
		// Fully in the past; fire its callback and drop it
		if b.onEnded != nil {
			fn := b.onEnded
			go fn()
		}
		s.pending = s.pending[1:]
	}
	return nil
}
