package config

import "testing"

func clearVoicereaderEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SPEAK_SELECTION_ENGINE_TOKEN",
		"VOICEREADER_HOST",
		"VOICEREADER_PORT",
		"VOICEREADER_SYNTH_BACKEND",
		"VOICEREADER_QWEN_MODEL",
		"VOICEREADER_QWEN_DEVICE_MAP",
		"VOICEREADER_KYUTAI_MODEL",
		"VOICEREADER_SOX_PATH",
		"VOICEREADER_HF_CACHE_DIR",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	clearVoicereaderEnv(t)
	if _, err := Load(LoadOptions{}); err == nil {
		t.Fatalf("expected error when no token is resolvable")
	}
}

func TestLoadUsesTokenEnvVariable(t *testing.T) {
	clearVoicereaderEnv(t)
	t.Setenv("SPEAK_SELECTION_ENGINE_TOKEN", "secret-token")

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Token != "secret-token" {
		t.Fatalf("Token = %q, want %q", cfg.Token, "secret-token")
	}
	if cfg.Host != DefaultHost {
		t.Fatalf("Host = %q, want default %q", cfg.Host, DefaultHost)
	}
	if cfg.SynthBackend != DefaultSynthBackend {
		t.Fatalf("SynthBackend = %q, want default %q", cfg.SynthBackend, DefaultSynthBackend)
	}
}

func TestLoadRejectsInvalidSynthBackend(t *testing.T) {
	clearVoicereaderEnv(t)
	t.Setenv("SPEAK_SELECTION_ENGINE_TOKEN", "secret-token")
	t.Setenv("VOICEREADER_SYNTH_BACKEND", "nonsense")

	if _, err := Load(LoadOptions{}); err == nil {
		t.Fatalf("expected error for invalid synth_backend")
	}
}

func TestDeviceNormalizesCudaDeviceMap(t *testing.T) {
	cfg := EngineConfig{QwenDeviceMap: "cuda:0"}
	if got := cfg.Device(); got != "cuda" {
		t.Fatalf("Device() = %q, want %q", got, "cuda")
	}
	cfg.QwenDeviceMap = "cpu"
	if got := cfg.Device(); got != "cpu" {
		t.Fatalf("Device() = %q, want %q", got, "cpu")
	}
}

func TestBootstrapOverridesApplyOnlyNonNilFields(t *testing.T) {
	cfg := EngineConfig{Token: "orig", Port: 8765, DataDir: "/data"}
	newPort := 9000
	overrides := BootstrapOverrides{Port: &newPort}

	updated := overrides.Apply(cfg)
	if updated.Port != 9000 {
		t.Fatalf("Port = %d, want 9000", updated.Port)
	}
	if updated.Token != "orig" {
		t.Fatalf("Token = %q, want unchanged %q", updated.Token, "orig")
	}
}
