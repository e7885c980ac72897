package engine

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tutorstream/narration-gateway/internal/audio"
	"github.com/tutorstream/narration-gateway/internal/config"
	"github.com/tutorstream/narration-gateway/internal/observability"
	"github.com/tutorstream/narration-gateway/internal/transport"
)

// Transport is the backend session the engine drives. One Connect per
// session; Events delivers decoded server messages and is closed when the
// session ends, so the engine must re-fetch it after reconnecting.
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
	Send(ctx context.Context, text string) error
	Events() <-chan transport.ServerEvent
	Close() error
}

// SpeakOption configures one utterance
type SpeakOption func(*speakOptions)

type speakOptions struct {
	onPlaybackStart func()
}

// WithPlaybackStart registers a one-shot callback fired when the
// utterance's first fragment is scheduled. Schedule time may precede
// audible start by the priming offset.
func WithPlaybackStart(fn func()) SpeakOption {
	return func(o *speakOptions) {
		o.onPlaybackStart = fn
	}
}

type connectRequest struct {
	ctx    context.Context
	warm   bool
	result chan error
}

// Engine is the speech playback engine: it serializes speak calls into a
// FIFO utterance queue, sends one utterance at a time to the backend,
// schedules inbound fragments for gapless playback and detects utterance
// completion despite fragments racing the turn-complete signal.
//
// All mutable state (queue, cursors, counters) is owned by a single run
// goroutine; the public methods communicate with it over channels, so the
// core holds no locks.
type Engine struct {
	cfg     *config.Config
	tr      Transport
	output  Output
	logger  zerolog.Logger
	metrics *observability.Metrics

	speakCh      chan *utterance
	connectCh    chan *connectRequest
	disconnectCh chan chan struct{}
	endedCh      chan *utterance

	done      chan struct{}
	closeOnce sync.Once

	// Run-goroutine state. Never touched outside run.
	queue     []*utterance
	active    *utterance
	events    <-chan transport.ServerEvent
	idleTimer *time.Timer
	idleC     <-chan time.Time
}

// New creates an engine and starts its run goroutine. The engine owns the
// transport session; the output graph is injected and shared with no one.
func New(cfg *config.Config, tr Transport, output Output) *Engine {
	e := &Engine{
		cfg:          cfg,
		tr:           tr,
		output:       output,
		logger:       observability.WithComponent("engine"),
		metrics:      observability.NewSessionMetrics(uuid.New().String()),
		speakCh:      make(chan *utterance),
		connectCh:    make(chan *connectRequest),
		disconnectCh: make(chan chan struct{}),
		endedCh:      make(chan *utterance, 256),
		done:         make(chan struct{}),
	}
	go e.run()
	return e
}

// Connect establishes the backend session. Idempotent: connecting an
// already-connected engine logs a warning and succeeds without touching
// the existing session.
func (e *Engine) Connect(ctx context.Context) error {
	return e.connect(ctx, false)
}

// WarmUp opportunistically connects before the first utterance is known to
// hide connection latency. Best-effort: failures are logged and swallowed,
// surfacing only as a later Connect or Speak failure.
func (e *Engine) WarmUp(ctx context.Context) {
	if err := e.connect(ctx, true); err != nil {
		e.logger.Debug().Err(err).Msg("Warm-up connect failed")
	}
}

func (e *Engine) connect(ctx context.Context, warm bool) error {
	req := &connectRequest{ctx: ctx, warm: warm, result: make(chan error, 1)}
	select {
	case e.connectCh <- req:
	case <-e.done:
		return &ConnectionError{Err: context.Canceled}
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue enqueues one utterance and returns a channel that delivers its
// terminal result: nil once the utterance has fully played, or a
// *SendError / *ConnectionError / *DisconnectedError. Empty or
// whitespace-only text resolves immediately with no session activity.
//
// Enqueue order from a single goroutine is speaking order.
func (e *Engine) Queue(text string, opts ...SpeakOption) <-chan error {
	result := make(chan error, 1)

	if strings.TrimSpace(text) == "" {
		result <- nil
		close(result)
		return result
	}

	var o speakOptions
	for _, opt := range opts {
		opt(&o)
	}

	u := &utterance{
		id:              uuid.New().String()[:8],
		text:            text,
		result:          result,
		onPlaybackStart: o.onPlaybackStart,
	}

	select {
	case e.speakCh <- u:
	case <-e.done:
		result <- &DisconnectedError{}
		close(result)
	}
	return result
}

// Speak narrates text and blocks until the utterance has fully played.
// There is no per-utterance cancellation: a caller abandoning Speak via
// ctx does not dequeue the utterance, it still plays to completion.
func (e *Engine) Speak(ctx context.Context, text string, opts ...SpeakOption) error {
	result := e.Queue(text, opts...)
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a backend session is active
func (e *Engine) Connected() bool {
	return e.tr.Connected()
}

// Disconnect tears the session down and rejects every pending utterance
// with a DisconnectedError. Safe to call multiple times.
func (e *Engine) Disconnect() {
	ack := make(chan struct{})
	select {
	case e.disconnectCh <- ack:
		<-ack
	case <-e.done:
	}
}

// Close disconnects and stops the run goroutine
func (e *Engine) Close() error {
	e.Disconnect()
	e.closeOnce.Do(func() {
		close(e.done)
	})
	return nil
}

// run owns all mutable engine state
func (e *Engine) run() {
	for {
		select {
		case u := <-e.speakCh:
			e.queue = append(e.queue, u)
			e.logger.Debug().Str("utterance", u.id).Int("queued", len(e.queue)).Msg("Utterance enqueued")
			e.processQueue()

		case req := <-e.connectCh:
			req.result <- e.handleConnect(req)

		case ack := <-e.disconnectCh:
			e.handleDisconnect()
			close(ack)

		case ev, ok := <-e.events:
			if !ok {
				e.handleSessionLoss()
				continue
			}
			e.handleServerEvent(ev)

		case u := <-e.endedCh:
			u.ended++

		case <-e.idleC:
			e.handleIdleCheck()

		case <-e.done:
			e.stopIdleTimer()
			return
		}
	}
}

func (e *Engine) handleConnect(req *connectRequest) error {
	if e.tr.Connected() {
		if !req.warm {
			e.logger.Warn().Msg("Connect called on an already-connected engine, ignoring")
		}
		return nil
	}
	if err := e.tr.Connect(req.ctx); err != nil {
		return &ConnectionError{Err: err}
	}
	e.events = e.tr.Events()
	return nil
}

// processQueue starts the next utterance when nothing is in flight,
// connecting lazily if needed. A connect or send failure rejects only the
// head utterance; the loop then gives the next item its own chance.
func (e *Engine) processQueue() {
	if e.active != nil {
		return
	}

	for len(e.queue) > 0 {
		if !e.tr.Connected() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.ConnectTimeout)*time.Second)
			err := e.tr.Connect(ctx)
			cancel()
			if err != nil {
				head := e.queue[0]
				e.queue = e.queue[1:]
				e.logger.Error().Err(err).Str("utterance", head.id).Msg("Lazy connect failed, rejecting utterance")
				e.metrics.RecordError("connection", "engine")
				head.resolve(&ConnectionError{Err: err})
				continue
			}
			e.events = e.tr.Events()
		}

		head := e.queue[0]
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.ConnectTimeout)*time.Second)
		err := e.tr.Send(ctx, head.text)
		cancel()
		if err != nil {
			e.queue = e.queue[1:]
			e.logger.Error().Err(err).Str("utterance", head.id).Msg("Send failed, rejecting utterance")
			e.metrics.RecordError("send", "engine")
			head.resolve(&SendError{Err: err})
			continue
		}

		e.active = head
		e.metrics.RecordUtteranceStart()
		e.logger.Info().Str("utterance", head.id).Int("chars", len(head.text)).Msg("Utterance sent")
		return
	}
}

func (e *Engine) handleServerEvent(ev transport.ServerEvent) {
	if len(ev.Parts) > 0 {
		u := e.active
		if u == nil {
			e.logger.Warn().Int("parts", len(ev.Parts)).Msg("Dropping audio with no utterance in flight")
		} else {
			for _, part := range ev.Parts {
				e.appendFragment(u, part)
			}
			e.scheduleReady(u)
		}
	}

	if ev.TurnComplete {
		u := e.active
		if u == nil {
			e.logger.Debug().Msg("Turn-complete with no utterance in flight")
		} else if u.state == stateAccumulating {
			u.state = stateAwaitingIdle
			e.logger.Debug().Str("utterance", u.id).Int("fragments", len(u.fragments)).Msg("Turn complete, awaiting idle")
			e.armIdleTimer()
		}
	}
}

// appendFragment records one inbound audio part. A base64 failure is a
// DecodeError: logged, the fragment kept as zero samples so the scheduler
// skips it without stalling the pipeline.
func (e *Engine) appendFragment(u *utterance, part transport.AudioPart) {
	index := len(u.fragments)

	data, err := base64.StdEncoding.DecodeString(part.Data)
	if err != nil {
		derr := &DecodeError{Index: index, Err: err}
		e.logger.Warn().Err(derr).Str("utterance", u.id).Msg("Fragment decode failed, skipping")
		e.metrics.RecordError("decode", "engine")
		data = nil
	}

	u.fragments = append(u.fragments, audio.Fragment{
		Data:   data,
		Format: audio.ParseFormat(part.MimeType, e.cfg.FallbackSampleRate),
		Index:  index,
	})
	u.lastFragmentAt = time.Now()
	e.metrics.RecordAudioBytes("in", int64(len(data)))
}

// scheduleReady schedules every received-but-unscheduled fragment, in
// arrival order. Called on arrival and on every idle check, so fragments
// that land during a completion wait are still picked up.
func (e *Engine) scheduleReady(u *utterance) {
	for u.scheduled < len(u.fragments) {
		e.scheduleFragment(u, u.fragments[u.scheduled])
	}
}

func (e *Engine) scheduleFragment(u *utterance, frag audio.Fragment) {
	samples := audio.DecodePCM16(frag.Data)
	if frag.Format.NumChannels > 1 {
		samples = audio.Downmix(samples, frag.Format.NumChannels)
	}

	if len(samples) == 0 {
		// Skip without advancing the cursor so continuity survives
		u.scheduled++
		e.metrics.RecordFragmentSkipped()
		e.logger.Debug().Str("utterance", u.id).Int("fragment", frag.Index).Msg("Zero-sample fragment skipped")
		return
	}

	now := e.output.Now()
	if !u.cursorSet {
		u.cursor = now + float64(e.cfg.PrimingOffsetMs)/1000.0
		u.cursorSet = true
	}

	start := u.cursor
	if floor := now + float64(e.cfg.SafetyMarginMs)/1000.0; start < floor {
		start = floor
		e.metrics.RecordUnderrun()
		e.logger.Debug().Str("utterance", u.id).Int("fragment", frag.Index).
			Float64("behind_s", floor-u.cursor).Msg("Cursor fell behind the audio clock")
	}

	buf := Buffer{Samples: samples, SampleRate: frag.Format.SampleRate}
	err := e.output.Play(buf, start, func() {
		select {
		case e.endedCh <- u:
		case <-e.done:
		}
	})
	if err != nil {
		// A failed buffer behaves like a skip; the cursor stays put
		u.scheduled++
		e.metrics.RecordError("playback", "engine")
		e.logger.Error().Err(err).Str("utterance", u.id).Int("fragment", frag.Index).Msg("Failed to schedule buffer")
		return
	}

	u.scheduled++
	u.played++
	u.cursor = start + buf.Duration()
	e.metrics.RecordFragmentScheduled()

	if !u.startNotified {
		u.startNotified = true
		if u.onPlaybackStart != nil {
			u.onPlaybackStart()
		}
	}

	if e.cfg.CaptureDir != "" {
		if u.capture == nil {
			u.capture = audio.NewCaptureWriter(e.cfg.CaptureDir, "utt-"+u.id, frag.Format.SampleRate)
		}
		u.capture.Append(samples)
	}
}

// handleIdleCheck runs the completion predicate and either finishes the
// active utterance or re-arms the timer
func (e *Engine) handleIdleCheck() {
	u := e.active
	if u == nil || u.state != stateAwaitingIdle {
		return
	}

	e.scheduleReady(u)

	idleGrace := time.Duration(e.cfg.IdleGraceMs) * time.Millisecond
	if u.quiesced(idleGrace) {
		e.finishActive(nil)
		return
	}

	if len(u.fragments) == 0 {
		e.logger.Warn().Str("utterance", u.id).Msg("Turn completed with no fragments received, still waiting")
	}
	e.armIdleTimer()
}

// finishActive resolves the in-flight utterance and advances the queue
func (e *Engine) finishActive(err error) {
	u := e.active
	if u == nil {
		return
	}

	if u.capture != nil {
		if cerr := u.capture.Close(); cerr != nil {
			e.logger.Warn().Err(cerr).Str("utterance", u.id).Msg("Failed to write capture file")
		}
		u.capture = nil
	}

	e.metrics.RecordUtteranceEnd()
	if err == nil {
		e.logger.Info().Str("utterance", u.id).
			Int("fragments", len(u.fragments)).Int("played", u.played).Msg("Utterance finished")
	}
	u.resolve(err)

	// The active utterance is always the queue head
	e.queue = e.queue[1:]
	e.active = nil
	e.stopIdleTimer()
	e.processQueue()
}

// handleDisconnect tears down the session and rejects everything pending
func (e *Engine) handleDisconnect() {
	if err := e.tr.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("Transport close failed")
	}
	e.output.Flush()
	e.rejectAll()
	e.events = nil
	e.stopIdleTimer()
	e.logger.Info().Msg("Engine disconnected")
}

// handleSessionLoss fires when the transport's event channel closes
// underneath us; pending utterances are rejected exactly as on Disconnect
func (e *Engine) handleSessionLoss() {
	e.events = nil
	e.logger.Warn().Int("pending", len(e.queue)).Msg("Backend session lost")
	e.output.Flush()
	e.rejectAll()
	e.stopIdleTimer()
}

func (e *Engine) rejectAll() {
	for _, u := range e.queue {
		if u == e.active {
			e.metrics.RecordUtteranceEnd()
		}
		if u.capture != nil {
			u.capture.Close()
			u.capture = nil
		}
		u.resolve(&DisconnectedError{})
	}
	e.queue = nil
	e.active = nil
}

func (e *Engine) armIdleTimer() {
	d := time.Duration(e.cfg.IdlePollMs) * time.Millisecond
	if e.idleTimer == nil {
		e.idleTimer = time.NewTimer(d)
		e.idleC = e.idleTimer.C
		return
	}
	if !e.idleTimer.Stop() {
		select {
		case <-e.idleTimer.C:
		default:
		}
	}
	e.idleTimer.Reset(d)
}

func (e *Engine) stopIdleTimer() {
	if e.idleTimer == nil {
		return
	}
	if !e.idleTimer.Stop() {
		select {
		case <-e.idleTimer.C:
		default:
		}
	}
}
