// Package voicestore is the filesystem-backed metadata store for voices,
// rooted at <data>/voices/. The default voice ("0") is synthetic and never
// touches disk; every other record owns a directory under voices/<uuid>/.
package voicestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultVoiceID is the literal id of the synthetic, immutable default voice.
const DefaultVoiceID = "0"

// Record is a voice's persisted metadata, matching the VoiceSummary wire
// shape plus the optional fields owned by the store.
type Record struct {
	VoiceID      string    `json:"voice_id"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
	TTSModelID   string    `json:"tts_model_id"`
	LanguageHint string    `json:"language_hint,omitempty"`
	Description  string    `json:"description,omitempty"`
	RefText      string    `json:"ref_text,omitempty"`
	HasRefAudio  bool      `json:"has_reference_audio,omitempty"`
	HasPrompt    bool      `json:"has_prompt,omitempty"`
}

// Fields requests a partial update of update(); fields absent from the
// request are left untouched, matching the original PATCH semantics.
type Fields struct {
	DisplayName  *string
	LanguageHint *string
	Description  *string
}

// Store is safe for concurrent reads. It does no locking of its own, and
// the HTTP voice handlers call Create/Update/Delete without holding the
// runtime lock, so concurrent writes to the same record are not serialized.
type Store struct {
	dataDir       string
	voicesDir     string
	activeModelID string
}

// New opens a store rooted at dataDir, creating the voices directory if
// needed. activeModelID is stamped onto newly created records and reported
// for the synthetic default voice.
func New(dataDir, activeModelID string) (*Store, error) {
	voicesDir := filepath.Join(dataDir, "voices")
	if err := os.MkdirAll(voicesDir, 0o755); err != nil {
		return nil, fmt.Errorf("voicestore: create voices dir: %w", err)
	}
	return &Store{dataDir: dataDir, voicesDir: voicesDir, activeModelID: activeModelID}, nil
}

func (s *Store) defaultVoice() Record {
	return Record{
		VoiceID:      DefaultVoiceID,
		DisplayName:  "Default Built-in Voice",
		CreatedAt:    time.Unix(0, 0).UTC(),
		TTSModelID:   s.activeModelID,
		LanguageHint: "auto",
	}
}

// List returns the default voice first, then all on-disk records sorted by
// created_at ascending. Records with unparseable meta.json are skipped
// silently.
func (s *Store) List() []Record {
	records := []Record{s.defaultVoice()}

	entries, err := os.ReadDir(s.voicesDir)
	if err != nil {
		return records
	}

	var onDisk []Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, ok := s.readMeta(entry.Name())
		if !ok {
			continue
		}
		onDisk = append(onDisk, rec)
	}
	sort.Slice(onDisk, func(i, j int) bool { return onDisk[i].CreatedAt.Before(onDisk[j].CreatedAt) })
	return append(records, onDisk...)
}

// Exists reports whether voiceID names the default voice or an on-disk
// record.
func (s *Store) Exists(voiceID string) bool {
	if voiceID == DefaultVoiceID {
		return true
	}
	_, err := os.Stat(s.metaPath(voiceID))
	return err == nil
}

// Create allocates a fresh UUID, creates its directory, writes meta.json,
// and returns the record. Fails if the directory already exists.
func (s *Store) Create(displayName, languageHint, refText, description string) (Record, error) {
	id := uuid.NewString()
	dir := s.voiceDir(id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("voicestore: create voice dir: %w", err)
	}

	rec := Record{
		VoiceID:      id,
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
		TTSModelID:   s.activeModelID,
		LanguageHint: languageHint,
		Description:  description,
		RefText:      refText,
	}
	if err := s.writeMeta(rec); err != nil {
		_ = os.RemoveAll(dir)
		return Record{}, err
	}
	return rec, nil
}

// Update applies a partial update of display_name/language_hint/description,
// ignoring fields not named in the request. Returns ok=false if the record
// is absent.
func (s *Store) Update(voiceID string, fields Fields) (Record, bool) {
	rec, ok := s.readMeta(voiceID)
	if !ok {
		return Record{}, false
	}
	if fields.DisplayName != nil {
		rec.DisplayName = *fields.DisplayName
	}
	if fields.LanguageHint != nil {
		rec.LanguageHint = *fields.LanguageHint
	}
	if fields.Description != nil {
		rec.Description = *fields.Description
	}
	if err := s.writeMeta(rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

// Delete recursively removes the voice directory, returning whether a
// directory was removed.
func (s *Store) Delete(voiceID string) bool {
	dir := s.voiceDir(voiceID)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	return os.RemoveAll(dir) == nil
}

// ReferenceAudioPath returns the canonical path for a voice's optional
// user-supplied reference audio artifact.
func (s *Store) ReferenceAudioPath(voiceID, suffix string) string {
	if suffix == "" {
		suffix = ".wav"
	}
	if suffix[0] != '.' {
		suffix = "." + suffix
	}
	return filepath.Join(s.voiceDir(voiceID), "reference_audio"+suffix)
}

// PromptPath returns the canonical path for a voice's optional prepared
// voice-prompt artifact.
func (s *Store) PromptPath(voiceID string) string {
	return filepath.Join(s.voiceDir(voiceID), "prompt.safetensors")
}

func (s *Store) voiceDir(voiceID string) string { return filepath.Join(s.voicesDir, voiceID) }
func (s *Store) metaPath(voiceID string) string { return filepath.Join(s.voiceDir(voiceID), "meta.json") }

func (s *Store) readMeta(voiceID string) (Record, bool) {
	data, err := os.ReadFile(s.metaPath(voiceID))
	if err != nil {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false
	}
	if _, err := os.Stat(s.ReferenceAudioPath(voiceID, ".wav")); err == nil {
		rec.HasRefAudio = true
	}
	if _, err := os.Stat(s.PromptPath(voiceID)); err == nil {
		rec.HasPrompt = true
	}
	return rec, true
}

func (s *Store) writeMeta(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("voicestore: marshal meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(rec.VoiceID), data, 0o644); err != nil {
		return fmt.Errorf("voicestore: write meta: %w", err)
	}
	return nil
}
