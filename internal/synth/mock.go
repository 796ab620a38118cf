package synth

import (
	"context"
	"math"
)

const (
	mockSampleRate = 24000
	mockFrequency  = 220.0
	mockAmplitude  = int(32767 * 0.18)
)

// Mock is a deterministic sine-tone generator. It never fails and accepts
// any voice id, making it the guaranteed terminal fallback of the auto
// factory and the default backend for tests.
type Mock struct {
	detail         string
	fallbackActive bool
}

// NewMock constructs a Mock backend. detail is surfaced verbatim in Status
// to explain why it was selected (explicit choice vs. fallback).
func NewMock(detail string, fallbackActive bool) *Mock {
	return &Mock{detail: detail, fallbackActive: fallbackActive}
}

func (m *Mock) SupportsVoiceID(string) bool { return true }

func (m *Mock) PrepareClonedVoice(_ context.Context, _ string, _ VoiceSource) (string, error) {
	return "", nil
}

func (m *Mock) ForgetVoice(string) {}

func (m *Mock) SynthesizeChunk(_ context.Context, text, _, _ string) (Audio, error) {
	durationSeconds := float64(len(text)) / 90.0
	if durationSeconds < 0.18 {
		durationSeconds = 0.18
	}
	if durationSeconds > 1.2 {
		durationSeconds = 1.2
	}

	sampleCount := int(durationSeconds * mockSampleRate)
	pcm := make([]byte, sampleCount*2)
	for i := 0; i < sampleCount; i++ {
		sample := int16(float64(mockAmplitude) * math.Sin(2.0*math.Pi*mockFrequency*(float64(i)/mockSampleRate)))
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}

	return Audio{PCM: pcm, SampleRate: mockSampleRate, Channels: 1}, nil
}

func (m *Mock) Warmup(ctx context.Context, text, language string) error {
	_, err := m.SynthesizeChunk(ctx, text, "0", language)
	return err
}

func (m *Mock) Status() Status {
	return Status{
		Backend:              "mock",
		ModelLoaded:          true,
		FallbackActive:       m.fallbackActive,
		Detail:               m.detail,
		SupportsVoiceClone:   true,
		SupportsDefaultVoice: true,
		SupportsClonedVoices: true,
	}
}

func (m *Mock) Close() error { return nil }
