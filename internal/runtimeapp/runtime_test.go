package runtimeapp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/voicereader/speakd/internal/config"
	"github.com/voicereader/speakd/internal/jobs"
)

func testConfig(t *testing.T) config.EngineConfig {
	t.Helper()
	return config.EngineConfig{
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
}

func TestNewBuildsRuntimeWithMockSynthesizer(t *testing.T) {
	rt, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if rt.Snapshot().Backend != "mock" {
		t.Fatalf("Backend = %q, want %q", rt.Snapshot().Backend, "mock")
	}
}

func TestTriggerWarmupTransitionsToReady(t *testing.T) {
	rt, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	accepted := rt.TriggerWarmup(context.Background(), true, false, "test")
	if !accepted {
		t.Fatalf("expected warmup to be accepted on first trigger")
	}
	if rt.Snapshot().Warmup.Status != WarmupReady {
		t.Fatalf("Warmup.Status = %q, want %q", rt.Snapshot().Warmup.Status, WarmupReady)
	}
}

func TestActivateRejectsWhenJobInFlight(t *testing.T) {
	rt, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rt.StartSpeak(jobs.Request{VoiceID: "0", Text: "a fairly long piece of text to keep the job running long enough for the test to observe it in flight", MaxChars: 400, Rate: 1.0, Volume: 1.0})

	_, err = rt.Activate(context.Background(), ActivateRequest{})
	if err == nil {
		t.Fatalf("expected Activate() to reject while a job is in flight")
	}
}

func TestActivateReplacesBundleAtomically(t *testing.T) {
	rt, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	before := rt.Bundle()

	newBackend := "mock"
	wait := false
	force := false
	bundle, err := rt.Activate(context.Background(), ActivateRequest{SynthBackend: &newBackend, WarmupWait: &wait, WarmupForce: &force})
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if rt.Bundle() == before {
		t.Fatalf("expected Bundle() to return a replaced pointer after Activate()")
	}
	if bundle.Config.SynthBackend != "mock" {
		t.Fatalf("Config.SynthBackend = %q, want %q", bundle.Config.SynthBackend, "mock")
	}
}

func TestModelMirrorPathSplitsOwnerRepo(t *testing.T) {
	got := modelMirrorPath("/data", "Owner/Repo")
	want := filepath.Join("/data", "models", "Owner", "Repo")
	if got != want {
		t.Fatalf("modelMirrorPath() = %q, want %q", got, want)
	}
}
