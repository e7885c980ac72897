package transport

import (
	"encoding/json"
	"fmt"
)

// Wire shapes for the bidirectional live-audio session. The backend speaks
// JSON text frames; every client message is a single-key envelope and every
// server message carries at most one of the fields below. Unknown fields are
// ignored.

// SetupMessage is the first client frame of a session
type SetupMessage struct {
	Setup SetupPayload `json:"setup"`
}

// SetupPayload configures the session model and audio response
type SetupPayload struct {
	Model            string           `json:"model"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// GenerationConfig selects audio output and the synthesis voice
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig names the prebuilt voice used for narration
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

// VoiceConfig wraps the prebuilt voice selection
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

// PrebuiltVoiceConfig holds the voice name
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// ClientContentMessage sends one narration turn to the backend
type ClientContentMessage struct {
	ClientContent ClientContent `json:"clientContent"`
}

// ClientContent is a list of turns; TurnComplete signals the backend may
// start responding
type ClientContent struct {
	Turns        []Turn `json:"turns"`
	TurnComplete bool   `json:"turnComplete"`
}

// Turn is one conversational turn
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is one piece of turn content
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries a base64 audio payload and its format descriptor
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// serverMessage is the raw decoded shape of an inbound frame
type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete"`
	ServerContent *serverContent `json:"serverContent"`
}

type serverContent struct {
	ModelTurn    *Turn `json:"modelTurn"`
	TurnComplete bool  `json:"turnComplete"`
}

// AudioPart is one inbound audio payload, still base64 encoded.
// MimeType is the format descriptor (e.g. "audio/pcm;rate=24000").
type AudioPart struct {
	MimeType string
	Data     string
}

// ServerEvent is one decoded inbound message. A message may carry audio
// parts, a turn-complete flag, both, or neither; consumers must treat an
// empty event as a no-op.
type ServerEvent struct {
	SetupComplete bool
	Parts         []AudioPart
	TurnComplete  bool
}

// ParseError reports a malformed inbound frame. Malformed frames are logged
// and dropped; they never reach the engine.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// decodeServerMessage decodes one inbound text frame into a ServerEvent
func decodeServerMessage(data []byte) (ServerEvent, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerEvent{}, &ParseError{Reason: "malformed JSON frame", Err: err}
	}

	var event ServerEvent

	if msg.SetupComplete != nil {
		event.SetupComplete = true
	}

	if msg.ServerContent != nil {
		event.TurnComplete = msg.ServerContent.TurnComplete
		if msg.ServerContent.ModelTurn != nil {
			for _, part := range msg.ServerContent.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				event.Parts = append(event.Parts, AudioPart{
					MimeType: part.InlineData.MimeType,
					Data:     part.InlineData.Data,
				})
			}
		}
	}

	return event, nil
}
