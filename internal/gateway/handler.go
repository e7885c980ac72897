package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tutorstream/narration-gateway/internal/config"
	"github.com/tutorstream/narration-gateway/internal/engine"
	"github.com/tutorstream/narration-gateway/internal/observability"
	"github.com/tutorstream/narration-gateway/internal/playback"
	"github.com/tutorstream/narration-gateway/internal/resilience"
	"github.com/tutorstream/narration-gateway/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from the tutoring UI origin; tighten
		// this before exposing the gateway publicly.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ClientMessage is a control frame from the browser client
type ClientMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// ServerMessage is a frame pushed to the browser client: paced media
// payloads plus utterance lifecycle events
type ServerMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload string `json:"payload,omitempty"` // base64 PCM for media frames
	Message string `json:"message,omitempty"`
}

// NarrationSession holds the state of one connected client: its engine,
// backend session, paced sink and the caller-side retry policy. The engine
// never retries; reconnection and circuit breaking live here.
type NarrationSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	cfg     *config.Config
	client  *transport.Client
	sink    *playback.PacedSink
	engine  *engine.Engine
	breaker *resilience.CircuitBreaker

	mu       sync.RWMutex
	isActive bool

	correlationID string
	metrics       *observability.Metrics
	logger        zerolog.Logger

	done chan struct{}
}

// NewNarrationSession wires an engine, transport and paced sink for one
// client connection
func NewNarrationSession(conn *websocket.Conn, cfg *config.Config) *NarrationSession {
	correlationID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(correlationID).
		With().
		Str("component", "gateway").
		Logger()

	s := &NarrationSession{
		conn:          conn,
		cfg:           cfg,
		correlationID: correlationID,
		metrics:       observability.NewSessionMetrics(correlationID),
		logger:        logger,
		breaker: resilience.NewCircuitBreaker(
			"backend",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		done:     make(chan struct{}),
		isActive: true,
	}

	s.client = transport.NewClient(cfg)
	s.sink = playback.NewPacedSink(cfg, s.sendMedia)
	s.engine = engine.New(cfg, s.client, s.sink)
	return s
}

// HandleNarrationWS is the entry point for client websocket connections
func HandleNarrationWS(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("Failed to upgrade connection")
			return
		}
		defer conn.Close()

		session := NewNarrationSession(conn, cfg)
		defer session.close()

		session.logger.Info().Msg("Narration client connected")

		// Pre-warm the backend session so the first utterance starts fast
		go session.preWarm()

		session.sendControl(ServerMessage{Type: "ready"})
		session.readLoop()
	}
}

// preWarm opportunistically connects the engine with the retry policy.
// Failures stay silent; a later speak will surface them.
func (s *NarrationSession) preWarm() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ConnectTimeout)*time.Second)
	defer cancel()
	if err := s.connectWithRetry(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Pre-warm failed")
	}
}

// connectWithRetry is the caller-side retry policy around engine connects:
// circuit breaker per attempt, exponential backoff across attempts
func (s *NarrationSession) connectWithRetry(ctx context.Context) error {
	reconnectCfg := &resilience.ReconnectConfig{
		MaxAttempts: s.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(s.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	err := resilience.Reconnect(ctx, func() error {
		attemptErr := s.breaker.Call(func() error {
			return s.engine.Connect(ctx)
		})
		observability.UpdateCircuitBreakerState("backend", int(s.breaker.GetState()))
		if attemptErr != nil {
			observability.IncrementCircuitBreakerFailures("backend")
		}
		return attemptErr
	}, reconnectCfg)

	return err
}

// readLoop handles control frames until the client disconnects
func (s *NarrationSession) readLoop() {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Client websocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse client message")
			s.sendControl(ServerMessage{Type: "error", Message: "malformed control frame"})
			continue
		}

		switch msg.Type {
		case "speak":
			s.handleSpeak(msg)

		case "stop":
			s.logger.Info().Msg("Client requested stop")
			s.engine.Disconnect()

		default:
			s.logger.Warn().Str("type", msg.Type).Msg("Unknown client message type")
			s.sendControl(ServerMessage{Type: "error", Message: "unknown message type: " + msg.Type})
		}
	}
}

// handleSpeak enqueues one utterance. Enqueueing happens synchronously on
// the read loop so client message order is speaking order; waiting for the
// result moves to a goroutine per utterance.
func (s *NarrationSession) handleSpeak(msg ClientMessage) {
	id := msg.ID
	if id == "" {
		id = uuid.New().String()[:8]
	}

	result := s.engine.Queue(msg.Text, engine.WithPlaybackStart(func() {
		s.sendControl(ServerMessage{Type: "started", ID: id})
	}))

	go func() {
		err := <-result
		if err == nil {
			s.sendControl(ServerMessage{Type: "finished", ID: id})
			return
		}

		// A connection failure gets one retried attempt behind the
		// gateway's retry policy; everything else is terminal for this
		// utterance.
		var connErr *engine.ConnectionError
		if errors.As(err, &connErr) {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			retryErr := s.connectWithRetry(ctx)
			cancel()
			if retryErr == nil {
				if err = <-s.engine.Queue(msg.Text); err == nil {
					s.sendControl(ServerMessage{Type: "finished", ID: id})
					return
				}
			}
		}

		s.metrics.RecordError("utterance", "gateway")
		s.logger.Error().Err(err).Str("utterance", id).Msg("Utterance failed")
		s.sendControl(ServerMessage{Type: "error", ID: id, Message: err.Error()})
	}()
}

// sendMedia pushes one tick of paced PCM to the client as a base64 media
// frame. Wired into the paced sink as its write function.
func (s *NarrationSession) sendMedia(pcm []byte) error {
	s.mu.RLock()
	active := s.isActive
	s.mu.RUnlock()
	if !active {
		return errors.New("session is not active")
	}

	s.metrics.RecordAudioBytes("out", int64(len(pcm)))
	return s.writeJSON(ServerMessage{
		Type:    "media",
		Payload: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (s *NarrationSession) sendControl(msg ServerMessage) {
	if err := s.writeJSON(msg); err != nil {
		s.logger.Debug().Err(err).Str("type", msg.Type).Msg("Failed to push control frame")
	}
}

func (s *NarrationSession) writeJSON(msg ServerMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// close tears down the engine, sink and backend session
func (s *NarrationSession) close() {
	s.mu.Lock()
	if !s.isActive {
		s.mu.Unlock()
		return
	}
	s.isActive = false
	s.mu.Unlock()

	close(s.done)
	s.engine.Close()
	s.sink.Close()
	s.logger.Info().Msg("Narration client disconnected")
}

// IsActive returns whether the session is still serving its client
func (s *NarrationSession) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isActive
}
