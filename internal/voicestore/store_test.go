package voicestore

import (
	"testing"
)

func TestDefaultVoiceAlwaysPresentAndFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, "mock-model-v1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	voices := store.List()
	if len(voices) != 1 {
		t.Fatalf("len(voices) = %d, want 1", len(voices))
	}
	if voices[0].VoiceID != DefaultVoiceID {
		t.Fatalf("voices[0].VoiceID = %q, want %q", voices[0].VoiceID, DefaultVoiceID)
	}
	if !store.Exists(DefaultVoiceID) {
		t.Fatalf("Exists(%q) = false, want true", DefaultVoiceID)
	}
}

func TestCreateListUpdateDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, "mock-model-v1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec, err := store.Create("My Voice", "en", "hello there", "a test voice")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.VoiceID == "" || rec.VoiceID == DefaultVoiceID {
		t.Fatalf("Create() returned invalid voice id %q", rec.VoiceID)
	}

	voices := store.List()
	if len(voices) != 2 {
		t.Fatalf("len(voices) = %d, want 2", len(voices))
	}
	found := false
	for _, v := range voices {
		if v.VoiceID == rec.VoiceID {
			found = true
			if v.DisplayName != "My Voice" {
				t.Fatalf("DisplayName = %q, want %q", v.DisplayName, "My Voice")
			}
		}
	}
	if !found {
		t.Fatalf("cloned voice %q not found in List()", rec.VoiceID)
	}

	newName := "Renamed Voice"
	updated, ok := store.Update(rec.VoiceID, Fields{DisplayName: &newName})
	if !ok {
		t.Fatalf("Update() ok = false")
	}
	if updated.DisplayName != newName {
		t.Fatalf("updated DisplayName = %q, want %q", updated.DisplayName, newName)
	}
	if updated.LanguageHint != "en" {
		t.Fatalf("unnamed field language_hint changed: got %q", updated.LanguageHint)
	}

	if !store.Delete(rec.VoiceID) {
		t.Fatalf("Delete() = false, want true")
	}
	if store.Exists(rec.VoiceID) {
		t.Fatalf("Exists() = true after Delete()")
	}
	if store.Delete(rec.VoiceID) {
		t.Fatalf("second Delete() = true, want false")
	}
}

func TestUpdateUnknownVoiceReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, "mock-model-v1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	name := "x"
	if _, ok := store.Update("00000000-0000-0000-0000-000000000000", Fields{DisplayName: &name}); ok {
		t.Fatalf("Update() ok = true for unknown voice")
	}
}

func TestCreateTwiceProducesDistinctIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, "mock-model-v1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a, err := store.Create("A", "", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	b, err := store.Create("B", "", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.VoiceID == b.VoiceID {
		t.Fatalf("expected distinct voice ids, got %q twice", a.VoiceID)
	}
}
