package synth

import (
	"context"
	"testing"
)

func TestMockSynthesizeChunkClampsDuration(t *testing.T) {
	m := NewMock("", false)
	ctx := context.Background()

	short, err := m.SynthesizeChunk(ctx, "hi", "0", "auto")
	if err != nil {
		t.Fatalf("SynthesizeChunk() error = %v", err)
	}
	minSamples := int(0.18 * mockSampleRate * 2)
	if len(short.PCM) != minSamples {
		t.Fatalf("len(PCM) = %d, want floor %d", len(short.PCM), minSamples)
	}

	long := make([]byte, 0)
	for i := 0; i < 500; i++ {
		long = append(long, 'a')
	}
	result, err := m.SynthesizeChunk(ctx, string(long), "0", "auto")
	if err != nil {
		t.Fatalf("SynthesizeChunk() error = %v", err)
	}
	maxSamples := int(1.2 * mockSampleRate * 2)
	if len(result.PCM) != maxSamples {
		t.Fatalf("len(PCM) = %d, want ceiling %d", len(result.PCM), maxSamples)
	}
}

func TestMockSupportsAnyVoiceID(t *testing.T) {
	m := NewMock("", false)
	if !m.SupportsVoiceID("0") || !m.SupportsVoiceID("anything") {
		t.Fatalf("mock must accept any voice id")
	}
}

func TestMockStatusReflectsFallback(t *testing.T) {
	m := NewMock("kyutai and qwen unavailable", true)
	status := m.Status()
	if !status.FallbackActive {
		t.Fatalf("FallbackActive = false, want true")
	}
	if status.Backend != "mock" {
		t.Fatalf("Backend = %q, want %q", status.Backend, "mock")
	}
}
