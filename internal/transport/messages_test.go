package transport

import (
	"errors"
	"testing"
)

func TestDecodeServerMessage_SetupComplete(t *testing.T) {
	event, err := decodeServerMessage([]byte(`{"setupComplete": {}}`))
	if err != nil {
		t.Fatalf("decodeServerMessage failed: %v", err)
	}

	if !event.SetupComplete {
		t.Error("Expected SetupComplete true")
	}
	if event.TurnComplete {
		t.Error("Expected TurnComplete false")
	}
	if len(event.Parts) != 0 {
		t.Errorf("Expected no parts, got %d", len(event.Parts))
	}
}

func TestDecodeServerMessage_AudioParts(t *testing.T) {
	raw := `{
		"serverContent": {
			"modelTurn": {
				"parts": [
					{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAAA"}},
					{"inlineData": {"mimeType": "audio/L16;rate=16000", "data": "BBBB"}}
				]
			}
		}
	}`

	event, err := decodeServerMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decodeServerMessage failed: %v", err)
	}

	if len(event.Parts) != 2 {
		t.Fatalf("Expected 2 parts, got %d", len(event.Parts))
	}
	if event.Parts[0].MimeType != "audio/pcm;rate=24000" {
		t.Errorf("Unexpected mime type: %s", event.Parts[0].MimeType)
	}
	if event.Parts[0].Data != "AAAA" {
		t.Errorf("Unexpected data: %s", event.Parts[0].Data)
	}
	if event.TurnComplete {
		t.Error("Expected TurnComplete false")
	}
}

func TestDecodeServerMessage_TurnComplete(t *testing.T) {
	event, err := decodeServerMessage([]byte(`{"serverContent": {"turnComplete": true}}`))
	if err != nil {
		t.Fatalf("decodeServerMessage failed: %v", err)
	}

	if !event.TurnComplete {
		t.Error("Expected TurnComplete true")
	}
	if len(event.Parts) != 0 {
		t.Errorf("Expected no parts, got %d", len(event.Parts))
	}
}

func TestDecodeServerMessage_AudioAndTurnComplete(t *testing.T) {
	raw := `{
		"serverContent": {
			"modelTurn": {
				"parts": [{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAAA"}}]
			},
			"turnComplete": true
		}
	}`

	event, err := decodeServerMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decodeServerMessage failed: %v", err)
	}

	if len(event.Parts) != 1 {
		t.Errorf("Expected 1 part, got %d", len(event.Parts))
	}
	if !event.TurnComplete {
		t.Error("Expected TurnComplete true")
	}
}

func TestDecodeServerMessage_EmptyMessage(t *testing.T) {
	// Messages with neither audio nor completion are no-ops, not errors
	event, err := decodeServerMessage([]byte(`{}`))
	if err != nil {
		t.Fatalf("decodeServerMessage failed: %v", err)
	}

	if event.SetupComplete || event.TurnComplete || len(event.Parts) != 0 {
		t.Errorf("Expected empty event, got %+v", event)
	}
}

func TestDecodeServerMessage_UnknownFieldsIgnored(t *testing.T) {
	event, err := decodeServerMessage([]byte(`{"usageMetadata": {"tokens": 5}, "serverContent": {"turnComplete": true}}`))
	if err != nil {
		t.Fatalf("decodeServerMessage failed: %v", err)
	}
	if !event.TurnComplete {
		t.Error("Expected TurnComplete true")
	}
}

func TestDecodeServerMessage_MalformedJSON(t *testing.T) {
	_, err := decodeServerMessage([]byte(`{not json`))
	if err == nil {
		t.Fatal("Expected parse error for malformed JSON")
	}

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("Expected *ParseError, got %T", err)
	}
}

func TestDecodeServerMessage_PartsWithoutData(t *testing.T) {
	raw := `{
		"serverContent": {
			"modelTurn": {
				"parts": [
					{"text": "thinking..."},
					{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAAA"}}
				]
			}
		}
	}`

	event, err := decodeServerMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decodeServerMessage failed: %v", err)
	}

	// Text parts carry no audio and are skipped
	if len(event.Parts) != 1 {
		t.Errorf("Expected 1 audio part, got %d", len(event.Parts))
	}
}
