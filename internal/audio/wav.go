package audio

import (
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// CaptureWriter accumulates normalized samples for one utterance and writes
// them out as a 16-bit WAV file. Used for diagnostics when a capture
// directory is configured.
type CaptureWriter struct {
	dir        string
	name       string
	sampleRate int
	samples    []float64
}

// NewCaptureWriter creates a capture writer for one utterance.
// name becomes the file stem, e.g. "utt-3f9a" -> utt-3f9a.wav.
func NewCaptureWriter(dir, name string, sampleRate int) *CaptureWriter {
	return &CaptureWriter{
		dir:        dir,
		name:       name,
		sampleRate: sampleRate,
	}
}

// Append adds scheduled samples to the capture
func (c *CaptureWriter) Append(samples []float64) {
	c.samples = append(c.samples, samples...)
}

// Close writes the accumulated samples to disk as a WAV file.
// Closing an empty capture writes nothing and returns nil.
func (c *CaptureWriter) Close() error {
	if len(c.samples) == 0 {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	path := filepath.Join(c.dir, c.name+".wav")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	defer file.Close()

	intData := make([]int, len(c.samples))
	for i, sample := range c.samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		intData[i] = int(sample * 32767.0)
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  c.sampleRate,
		},
		Data:           intData,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, c.sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}

	return nil
}
