package audio

// Fragment is one inbound audio chunk: raw PCM payload, its format, and a
// per-utterance index used only for diagnostics. Immutable once received.
type Fragment struct {
	Data   []byte
	Format Format
	Index  int
}

// Duration returns the fragment's playback duration in seconds
func (f Fragment) Duration() float64 {
	return f.Format.Duration(len(f.Data))
}

// DecodePCM16 decodes little-endian signed 16-bit PCM into normalized
// float64 samples in [-1, 1). A trailing odd byte is dropped.
func DecodePCM16(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float64(s) / 32768.0
	}
	return samples
}

// EncodePCM16 converts normalized float64 samples back to little-endian
// signed 16-bit PCM, clamping out-of-range values
func EncodePCM16(samples []float64) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		s := int16(sample * 32767.0)
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// Resample performs linear interpolation resampling of normalized samples.
// Adequate for speech playback; a sinc resampler would be overkill here.
func Resample(samples []float64, inputRate, outputRate int) []float64 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float64, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = samples[idx0]*(1.0-fraction) + samples[idx1]*fraction
	}

	return output
}

// Downmix folds interleaved multi-channel samples to mono by averaging
func Downmix(samples []float64, numChannels int) []float64 {
	if numChannels <= 1 {
		return samples
	}
	frames := len(samples) / numChannels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < numChannels; c++ {
			sum += samples[i*numChannels+c]
		}
		mono[i] = sum / float64(numChannels)
	}
	return mono
}
