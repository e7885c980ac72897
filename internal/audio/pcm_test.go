package audio

import (
	"math"
	"testing"
)

func TestDecodePCM16(t *testing.T) {
	// 0x7FFF (max positive), 0x8000 (min negative), 0x0000
	data := []byte{0xFF, 0x7F, 0x00, 0x80, 0x00, 0x00}

	samples := DecodePCM16(data)
	if len(samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(samples))
	}

	if math.Abs(samples[0]-32767.0/32768.0) > 1e-9 {
		t.Errorf("Expected max positive sample, got %f", samples[0])
	}
	if samples[1] != -1.0 {
		t.Errorf("Expected -1.0, got %f", samples[1])
	}
	if samples[2] != 0.0 {
		t.Errorf("Expected 0.0, got %f", samples[2])
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	data := []byte{0x00, 0x10, 0xFF}
	samples := DecodePCM16(data)
	if len(samples) != 1 {
		t.Errorf("Expected trailing odd byte to be dropped, got %d samples", len(samples))
	}
}

func TestDecodePCM16_Empty(t *testing.T) {
	samples := DecodePCM16(nil)
	if len(samples) != 0 {
		t.Errorf("Expected no samples for empty payload, got %d", len(samples))
	}
}

func TestEncodePCM16_RoundTrip(t *testing.T) {
	original := []float64{0.0, 0.5, -0.5, 0.25}

	decoded := DecodePCM16(EncodePCM16(original))
	if len(decoded) != len(original) {
		t.Fatalf("Expected %d samples, got %d", len(original), len(decoded))
	}

	for i := range original {
		if math.Abs(decoded[i]-original[i]) > 1.0/32768.0 {
			t.Errorf("Sample %d: expected %f, got %f", i, original[i], decoded[i])
		}
	}
}

func TestEncodePCM16_Clamps(t *testing.T) {
	data := EncodePCM16([]float64{2.0, -2.0})

	samples := DecodePCM16(data)
	if samples[0] < 0.99 {
		t.Errorf("Expected positive overflow clamped near 1.0, got %f", samples[0])
	}
	if samples[1] > -0.99 {
		t.Errorf("Expected negative overflow clamped near -1.0, got %f", samples[1])
	}
}

func TestResample_SameRate(t *testing.T) {
	samples := []float64{0.1, 0.2, 0.3}
	out := Resample(samples, 24000, 24000)
	if len(out) != 3 {
		t.Errorf("Expected passthrough at equal rates, got %d samples", len(out))
	}
}

func TestResample_Upsample(t *testing.T) {
	samples := make([]float64, 1600) // 100ms at 16kHz
	out := Resample(samples, 16000, 24000)

	if len(out) != 2400 {
		t.Errorf("Expected 2400 samples after 16k->24k resample, got %d", len(out))
	}
}

func TestResample_Downsample(t *testing.T) {
	samples := make([]float64, 2400) // 100ms at 24kHz
	out := Resample(samples, 24000, 8000)

	if len(out) != 800 {
		t.Errorf("Expected 800 samples after 24k->8k resample, got %d", len(out))
	}
}

func TestResample_Interpolates(t *testing.T) {
	// Doubling the rate of a ramp should keep it monotonic
	samples := []float64{0.0, 0.1, 0.2, 0.3}
	out := Resample(samples, 8000, 16000)

	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Errorf("Expected monotonic output, out[%d]=%f < out[%d]=%f", i, out[i], i-1, out[i-1])
		}
	}
}

func TestDownmix_Stereo(t *testing.T) {
	// Interleaved L/R pairs
	samples := []float64{0.2, 0.4, -0.2, -0.4}
	mono := Downmix(samples, 2)

	if len(mono) != 2 {
		t.Fatalf("Expected 2 mono frames, got %d", len(mono))
	}
	if math.Abs(mono[0]-0.3) > 1e-9 {
		t.Errorf("Expected averaged frame 0.3, got %f", mono[0])
	}
	if math.Abs(mono[1]+0.3) > 1e-9 {
		t.Errorf("Expected averaged frame -0.3, got %f", mono[1])
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	samples := []float64{0.1, 0.2}
	mono := Downmix(samples, 1)
	if len(mono) != 2 {
		t.Errorf("Expected passthrough for mono input, got %d frames", len(mono))
	}
}

func TestFragment_Duration(t *testing.T) {
	f := Fragment{
		Data:   make([]byte, 4800), // 2400 samples = 100ms at 24kHz
		Format: Format{BitsPerSample: 16, SampleRate: 24000, NumChannels: 1},
	}

	if math.Abs(f.Duration()-0.1) > 1e-9 {
		t.Errorf("Expected 0.1s duration, got %f", f.Duration())
	}
}
