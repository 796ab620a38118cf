package httpapi

import (
	"encoding/base64"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voicereader/speakd/internal/apierrors"
	"github.com/voicereader/speakd/internal/audio"
	"github.com/voicereader/speakd/internal/synth"
	"github.com/voicereader/speakd/internal/voicestore"
)

// voiceSummary is the wire shape for a voice record.
type voiceSummary struct {
	VoiceID           string `json:"voice_id"`
	DisplayName       string `json:"display_name"`
	CreatedAt         string `json:"created_at"`
	TTSModelID        string `json:"tts_model_id"`
	LanguageHint      string `json:"language_hint,omitempty"`
	Description       string `json:"description,omitempty"`
	RefText           string `json:"ref_text,omitempty"`
	HasReferenceAudio bool   `json:"has_reference_audio,omitempty"`
	HasPrompt         bool   `json:"has_prompt,omitempty"`
}

func toVoiceSummary(rec voicestore.Record) voiceSummary {
	return voiceSummary{
		VoiceID:           rec.VoiceID,
		DisplayName:       rec.DisplayName,
		CreatedAt:         rec.CreatedAt.Format(timeLayout),
		TTSModelID:        rec.TTSModelID,
		LanguageHint:      rec.LanguageHint,
		Description:       rec.Description,
		RefText:           rec.RefText,
		HasReferenceAudio: rec.HasRefAudio,
		HasPrompt:         rec.HasPrompt,
	}
}

// normalizeVoiceID accepts "0" and validates any other value parses as a
// UUID; any other shape is rejected.
func normalizeVoiceID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == voicestore.DefaultVoiceID {
		return voicestore.DefaultVoiceID, true
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", false
	}
	return raw, true
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	store := s.runtime.Bundle().VoiceStore
	records := store.List()
	voices := make([]voiceSummary, 0, len(records))
	for _, rec := range records {
		voices = append(voices, toVoiceSummary(rec))
	}
	respondJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

type cloneVoiceOptions struct {
	NormalizeAudio *bool `json:"normalize_audio"`
}

type cloneVoiceReferenceAudio struct {
	Path      string `json:"path"`
	WAVBase64 string `json:"wav_base64"`
}

type cloneVoiceRequest struct {
	DisplayName string                   `json:"display_name"`
	RefAudio    cloneVoiceReferenceAudio `json:"ref_audio"`
	RefText     string                   `json:"ref_text"`
	Language    string                   `json:"language"`
	Description string                   `json:"description"`
	Options     cloneVoiceOptions        `json:"options"`
}

func (s *Server) handleCloneVoice(w http.ResponseWriter, r *http.Request) {
	var req cloneVoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.New(apierrors.InvalidRequest, "malformed JSON body").WriteJSON(w)
		return
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" || len([]rune(name)) > 80 {
		apierrors.New(apierrors.InvalidRequest, "display_name must be 1-80 characters").WriteJSON(w)
		return
	}

	hasPath := strings.TrimSpace(req.RefAudio.Path) != ""
	hasInline := strings.TrimSpace(req.RefAudio.WAVBase64) != ""
	if hasPath == hasInline {
		apierrors.New(apierrors.InvalidAudio, "ref_audio requires exactly one of path or wav_base64").WriteJSON(w)
		return
	}

	var wavBytes []byte
	if hasInline {
		decoded, err := base64.StdEncoding.DecodeString(req.RefAudio.WAVBase64)
		if err != nil {
			apierrors.New(apierrors.InvalidAudio, "wav_base64 is not valid base64").WriteJSON(w)
			return
		}
		wavBytes = decoded
	} else {
		data, err := readReferenceAudioPath(req.RefAudio.Path)
		if err != nil {
			apierrors.New(apierrors.InvalidAudio, err.Error()).WriteJSON(w)
			return
		}
		wavBytes = data
	}

	pcm, sampleRate, _, err := audio.DecodePCM16LEWAV(wavBytes)
	if err != nil {
		apierrors.New(apierrors.InvalidAudio, err.Error()).WriteJSON(w)
		return
	}

	normalize := true
	if req.Options.NormalizeAudio != nil {
		normalize = *req.Options.NormalizeAudio
	}
	if normalize {
		pcm = audio.NormalizePeak(pcm, 0.95)
	}

	store := s.runtime.Bundle().VoiceStore
	rec, err := store.Create(name, req.Language, req.RefText, req.Description)
	if err != nil {
		apierrors.New(apierrors.VoiceCloneFail, err.Error()).WriteJSON(w)
		return
	}

	if err := os.WriteFile(store.ReferenceAudioPath(rec.VoiceID, ".wav"), wavBytes, 0o644); err != nil {
		store.Delete(rec.VoiceID)
		apierrors.New(apierrors.VoiceCloneFail, err.Error()).WriteJSON(w)
		return
	}

	synthesizer := s.runtime.Bundle().Synthesizer
	source := synth.VoiceSource{ReferencePCM: pcm, SampleRate: sampleRate, RefText: req.RefText}
	if _, err := synthesizer.PrepareClonedVoice(r.Context(), rec.VoiceID, source); err != nil {
		store.Delete(rec.VoiceID)
		apierrors.New(apierrors.VoiceCloneFail, err.Error()).WriteJSON(w)
		return
	}

	rec, _ = store.Update(rec.VoiceID, voicestore.Fields{})
	respondJSON(w, http.StatusCreated, toVoiceSummary(rec))
}

type updateVoiceRequest struct {
	DisplayName *string `json:"display_name"`
	Language    *string `json:"language"`
	Description *string `json:"description"`
}

func (s *Server) handleUpdateVoice(w http.ResponseWriter, r *http.Request) {
	voiceID, ok := normalizeVoiceID(chi.URLParam(r, "voice_id"))
	if !ok {
		apierrors.New(apierrors.VoiceNotFound, "unknown voice id").WriteJSON(w)
		return
	}
	if voiceID == voicestore.DefaultVoiceID {
		apierrors.New(apierrors.Forbidden, "the default voice cannot be modified").WriteJSON(w)
		return
	}

	var req updateVoiceRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		apierrors.New(apierrors.InvalidRequest, "malformed JSON body").WriteJSON(w)
		return
	}

	store := s.runtime.Bundle().VoiceStore
	rec, ok := store.Update(voiceID, voicestore.Fields{
		DisplayName:  req.DisplayName,
		LanguageHint: req.Language,
		Description:  req.Description,
	})
	if !ok {
		apierrors.New(apierrors.VoiceNotFound, "unknown voice id").WriteJSON(w)
		return
	}
	respondJSON(w, http.StatusOK, toVoiceSummary(rec))
}

func (s *Server) handleDeleteVoice(w http.ResponseWriter, r *http.Request) {
	voiceID, ok := normalizeVoiceID(chi.URLParam(r, "voice_id"))
	if !ok {
		apierrors.New(apierrors.VoiceNotFound, "unknown voice id").WriteJSON(w)
		return
	}
	if voiceID == voicestore.DefaultVoiceID {
		apierrors.New(apierrors.Forbidden, "the default voice cannot be deleted").WriteJSON(w)
		return
	}

	store := s.runtime.Bundle().VoiceStore
	if !store.Exists(voiceID) {
		apierrors.New(apierrors.VoiceNotFound, "unknown voice id").WriteJSON(w)
		return
	}
	store.Delete(voiceID)
	s.runtime.Bundle().Synthesizer.ForgetVoice(voiceID)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func readReferenceAudioPath(path string) ([]byte, error) {
	return os.ReadFile(strings.TrimSpace(path))
}
