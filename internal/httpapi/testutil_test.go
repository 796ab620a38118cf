package httpapi

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/voicereader/speakd/internal/config"
	"github.com/voicereader/speakd/internal/runtimeapp"
)

func newTestServer(t *testing.T) (*Server, *runtimeapp.Runtime) {
	t.Helper()
	cfg := config.EngineConfig{
		Token:           "secret",
		Host:            config.DefaultHost,
		Port:            config.DefaultPort,
		DataDir:         t.TempDir(),
		ActiveModelID:   config.DefaultModelID,
		SynthBackend:    "mock",
		WarmupText:      "warmup sentence",
		WarmupLanguage:  "auto",
		KyutaiModelName: "Owner/Repo",
	}
	rt, err := runtimeapp.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("runtimeapp.New() error = %v", err)
	}
	return New(cfg.Token, rt, nil, true, nil), rt
}

// buildMonoWAV16 returns a minimal valid RIFF/WAVE file wrapping pcm as
// 16-bit mono samples at sampleRate, matching the shape audio.DecodePCM16LEWAV
// expects from a user-supplied reference clip.
func buildMonoWAV16(sampleRate int, pcm []byte) []byte {
	var buf bytes.Buffer
	dataSize := len(pcm)
	byteRate := sampleRate * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(2)) // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)
	return buf.Bytes()
}

func tonePCM16(n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(1000)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm
}
