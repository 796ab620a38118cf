package audio

import (
	"bytes"
	"fmt"

	cwav "github.com/cwbudde/wav"
)

// DecodePCM16LEWAV decodes a WAV byte buffer into raw interleaved signed
// 16-bit little-endian PCM plus its sample rate and channel count. Used to
// ingest user-supplied reference audio for voice cloning.
func DecodePCM16LEWAV(data []byte) (pcm []byte, sampleRate int, channels int, err error) {
	if len(data) == 0 {
		return nil, 0, 0, fmt.Errorf("audio: empty WAV input")
	}

	dec := cwav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("audio: not a valid WAV file")
	}
	if dec.BitDepth != 16 {
		return nil, 0, 0, fmt.Errorf("audio: unsupported bit depth %d, want 16", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: decode PCM: %w", err)
	}

	samples := buf.AsIntBuffer().Data
	pcm = make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(s)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}

	return pcm, int(dec.SampleRate), int(dec.NumChans), nil
}

// NormalizePeak attenuates int16 PCM samples so the absolute peak does not
// exceed target * 32767 (target is a fraction of full scale, e.g. 0.95).
// It never amplifies: a clip whose peak is already at or below that level
// keeps its original amplitude, and silence is returned untouched. It is
// applied to cloned-voice reference audio when the caller requests
// normalize_audio.
func NormalizePeak(pcm []byte, target float64) []byte {
	if len(pcm) < 2 {
		return pcm
	}
	n := len(pcm) / 2
	peak := 0
	for i := 0; i < n; i++ {
		v := int(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return pcm
	}

	scale := target * 32767.0 / float64(peak)
	if scale > 1.0 {
		scale = 1.0 // never amplify above unity; only attenuate clipping risk
	}

	out := make([]byte, len(pcm))
	for i := 0; i < n; i++ {
		v := int(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
		scaled := int(float64(v) * scale)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		out[i*2] = byte(int16(scaled))
		out[i*2+1] = byte(int16(scaled) >> 8)
	}
	return out
}
