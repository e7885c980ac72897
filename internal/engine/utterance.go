package engine

import (
	"time"

	"github.com/tutorstream/narration-gateway/internal/audio"
)

type utteranceState int

const (
	// stateAccumulating: fragments are arriving, no turn-complete seen yet
	stateAccumulating utteranceState = iota
	// stateAwaitingIdle: turn-complete seen, waiting for the stream to quiesce
	stateAwaitingIdle
	// stateDone: resolved or rejected, terminal
	stateDone
)

// utterance is one speak request moving through the queue. All fields are
// owned by the engine's run goroutine; nothing here is touched concurrently.
type utterance struct {
	id     string
	text   string
	result chan error

	onPlaybackStart func()
	startNotified   bool

	fragments []audio.Fragment
	// scheduled counts fragments handled by the scheduler, including
	// zero-sample skips. played counts buffers actually handed to the
	// output graph; ended counts those whose playback has finished.
	// Invariant: ended <= played <= scheduled <= len(fragments).
	scheduled int
	played    int
	ended     int

	state          utteranceState
	lastFragmentAt time.Time

	// cursor is the absolute audio-clock time the next fragment starts at
	cursor    float64
	cursorSet bool

	capture *audio.CaptureWriter
}

// resolve delivers the terminal result exactly once
func (u *utterance) resolve(err error) {
	if u.state == stateDone {
		return
	}
	u.state = stateDone
	u.result <- err
	close(u.result)
}

// quiesced reports whether the four-part completion predicate holds:
// enough quiet time since the last fragment, all received fragments
// scheduled, all scheduled playback finished, and at least one fragment
// ever received.
func (u *utterance) quiesced(idleGrace time.Duration) bool {
	if u.state != stateAwaitingIdle {
		return false
	}
	if len(u.fragments) == 0 {
		return false
	}
	if time.Since(u.lastFragmentAt) < idleGrace {
		return false
	}
	if u.scheduled < len(u.fragments) {
		return false
	}
	if u.ended < u.played {
		return false
	}
	return true
}
