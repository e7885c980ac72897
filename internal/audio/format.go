package audio

import (
	"mime"
	"strconv"
	"strings"
)

// Format describes the sample layout of a PCM fragment
type Format struct {
	BitsPerSample int
	SampleRate    int
	NumChannels   int
}

// Defaults applied when a descriptor omits a field
const (
	DefaultBitsPerSample = 16
	DefaultNumChannels   = 1
	DefaultSampleRate    = 24000
)

// DefaultFormat returns the format assumed when no descriptor is present
func DefaultFormat(fallbackRate int) Format {
	if fallbackRate <= 0 {
		fallbackRate = DefaultSampleRate
	}
	return Format{
		BitsPerSample: DefaultBitsPerSample,
		SampleRate:    fallbackRate,
		NumChannels:   DefaultNumChannels,
	}
}

// ParseFormat parses a fragment format descriptor such as
// "audio/L16;rate=16000" or "audio/pcm;rate=24000".
//
// The encoding token may carry the bit depth as a letter-prefixed number
// (L16 -> 16 bits). Missing or unparseable pieces fall back to 16-bit mono
// at the supplied fallback rate. ParseFormat never fails; a garbage
// descriptor yields the defaults.
func ParseFormat(descriptor string, fallbackRate int) Format {
	f := DefaultFormat(fallbackRate)
	if descriptor == "" {
		return f
	}

	mediaType, params, err := mime.ParseMediaType(descriptor)
	if err != nil {
		// Malformed parameters; still try to read the bit depth from the
		// part before the first semicolon.
		mediaType = strings.SplitN(descriptor, ";", 2)[0]
		params = nil
	}

	// Bit depth from the encoding token, e.g. "audio/L16" -> 16
	if idx := strings.Index(mediaType, "/"); idx >= 0 {
		encoding := mediaType[idx+1:]
		if len(encoding) > 1 {
			if bits, err := strconv.Atoi(encoding[1:]); err == nil && bits > 0 {
				f.BitsPerSample = bits
			}
		}
	}

	// Sample rate from the rate parameter
	if rate, ok := params["rate"]; ok {
		if parsed, err := strconv.Atoi(rate); err == nil && parsed > 0 {
			f.SampleRate = parsed
		}
	}

	return f
}

// BytesPerSample returns the byte width of one sample in one channel
func (f Format) BytesPerSample() int {
	return f.BitsPerSample / 8
}

// Duration returns the playback duration in seconds of a payload of the
// given byte length in this format
func (f Format) Duration(byteLen int) float64 {
	bytesPerFrame := f.BytesPerSample() * f.NumChannels
	if bytesPerFrame <= 0 || f.SampleRate <= 0 {
		return 0
	}
	frames := byteLen / bytesPerFrame
	return float64(frames) / float64(f.SampleRate)
}
