package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tutorstream/narration-gateway/internal/config"
	"github.com/tutorstream/narration-gateway/internal/observability"
)

// Client is the upstream live-session websocket client. One Client maps to
// one backend session; Connect establishes the session and performs the
// setup handshake, Send pushes narration turns, and decoded server events
// arrive on the channel returned by Events.
//
// The events channel is closed when the session ends, whether by Close or
// by the backend dropping the connection. Each successful Connect allocates
// a fresh channel, so consumers must re-fetch Events after reconnecting.
type Client struct {
	config *config.Config
	logger zerolog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	events   chan ServerEvent
	isActive bool
}

// NewClient creates a new backend session client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		config: cfg,
		logger: observability.WithComponent("transport"),
	}
}

// Connect dials the backend, sends the setup frame and waits for the
// setup acknowledgement. It is an error to call Connect while a session
// is active.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isActive {
		return fmt.Errorf("session already active")
	}

	endpoint, err := c.sessionURL()
	if err != nil {
		return fmt.Errorf("invalid backend URL: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(c.config.ConnectTimeout) * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial backend: %w", err)
	}

	setup := SetupMessage{
		Setup: SetupPayload{
			Model: c.config.BackendModel,
			GenerationConfig: GenerationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &SpeechConfig{
					VoiceConfig: VoiceConfig{
						PrebuiltVoiceConfig: PrebuiltVoiceConfig{
							VoiceName: c.config.BackendVoice,
						},
					},
				},
			},
		},
	}

	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send setup: %w", err)
	}

	if err := c.awaitSetupComplete(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.events = make(chan ServerEvent, 64)
	c.isActive = true

	go c.readLoop(conn, c.events)

	c.logger.Info().
		Str("model", c.config.BackendModel).
		Str("voice", c.config.BackendVoice).
		Msg("Backend session established")

	return nil
}

// awaitSetupComplete reads frames until the setup acknowledgement arrives
// or the handshake timeout elapses. Frames that are not the acknowledgement
// are dropped; the backend sends nothing else before acknowledging.
func (c *Client) awaitSetupComplete(ctx context.Context, conn *websocket.Conn) error {
	deadline := time.Now().Add(time.Duration(c.config.HandshakeTimeout) * time.Second)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("setup handshake failed: %w", err)
		}

		event, err := decodeServerMessage(data)
		if err != nil {
			observability.RecordComponentError("parse", "transport")
			c.logger.Warn().Err(err).Msg("Dropping malformed frame during handshake")
			continue
		}
		if event.SetupComplete {
			return nil
		}
	}
}

// sessionURL builds the dial URL with the API key attached
func (c *Client) sessionURL() (string, error) {
	u, err := url.Parse(c.config.BackendURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", c.config.BackendAPIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop decodes inbound frames until the connection dies, then closes
// the events channel
func (c *Client) readLoop(conn *websocket.Conn, events chan ServerEvent) {
	defer close(events)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Backend session lost")
			}
			c.markInactive(conn)
			return
		}

		event, err := decodeServerMessage(data)
		if err != nil {
			observability.RecordComponentError("parse", "transport")
			c.logger.Warn().Err(err).Msg("Dropping malformed backend frame")
			continue
		}

		select {
		case events <- event:
		default:
			// The engine consumes faster than the backend produces in
			// practice; a full channel means the consumer is gone.
			c.logger.Warn().Msg("Event channel full, dropping backend event")
		}
	}
}

// markInactive clears the session state if conn is still the live one
func (c *Client) markInactive(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.isActive = false
		c.conn = nil
	}
}

// Connected reports whether a backend session is active
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isActive
}

// Send pushes one narration turn to the backend
func (c *Client) Send(ctx context.Context, text string) error {
	c.mu.RLock()
	conn := c.conn
	active := c.isActive
	c.mu.RUnlock()

	if !active || conn == nil {
		return fmt.Errorf("session not active")
	}

	msg := ClientContentMessage{
		ClientContent: ClientContent{
			Turns: []Turn{
				{
					Role:  "user",
					Parts: []Part{{Text: text}},
				},
			},
			TurnComplete: true,
		},
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send turn: %w", err)
	}

	return nil
}

// Events returns the channel delivering decoded server events for the
// current session. Returns nil when no session is active.
func (c *Client) Events() <-chan ServerEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.isActive {
		return nil
	}
	return c.events
}

// Close shuts the session down. Safe to call when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.isActive = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	// Best-effort close frame; the read loop exits when the socket drops.
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	return conn.Close()
}
