package synth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/voicereader/speakd/internal/config"
)

func TestCreateMockBackendExplicit(t *testing.T) {
	cfg := config.EngineConfig{SynthBackend: "mock"}
	synthesizer, err := Create(context.Background(), cfg, KyutaiConfig{}, QwenConfig{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer synthesizer.Close()

	if synthesizer.Status().Backend != "mock" {
		t.Fatalf("Backend = %q, want %q", synthesizer.Status().Backend, "mock")
	}
	if synthesizer.Status().FallbackActive {
		t.Fatalf("explicit mock backend should not report FallbackActive")
	}
}

func TestCreateAutoFallsBackToMockWhenNoBackendAvailable(t *testing.T) {
	cfg := config.EngineConfig{SynthBackend: "auto"}
	kyutaiCfg := KyutaiConfig{ModelMirrorDir: filepath.Join(t.TempDir(), "missing")}
	qwenCfg := QwenConfig{WorkerScript: filepath.Join(t.TempDir(), "missing.py")}

	synthesizer, err := Create(context.Background(), cfg, kyutaiCfg, qwenCfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer synthesizer.Close()

	status := synthesizer.Status()
	if status.Backend != "mock" || !status.FallbackActive {
		t.Fatalf("expected mock fallback with FallbackActive=true, got %+v", status)
	}
}

func TestCreateRejectsUnknownBackend(t *testing.T) {
	cfg := config.EngineConfig{SynthBackend: "nonsense"}
	if _, err := Create(context.Background(), cfg, KyutaiConfig{}, QwenConfig{}); err == nil {
		t.Fatalf("expected error for unknown synth_backend")
	}
}
