package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/voicereader/speakd/internal/apierrors"
	"github.com/voicereader/speakd/internal/jobs"
)

type speakSettingsChunking struct {
	MaxChars int `json:"max_chars"`
}

type speakSettings struct {
	Rate     float64               `json:"rate"`
	Pitch    float64               `json:"pitch"`
	Volume   *float64              `json:"volume"`
	Chunking speakSettingsChunking `json:"chunking"`
}

type speakRequest struct {
	VoiceID  string        `json:"voice_id"`
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Settings speakSettings `json:"settings"`
}

// clampedOrDefault resolves a JSON numeric field whose valid range excludes
// zero, so an exact-zero value unambiguously means "field omitted" rather
// than "field present and zero". Only safe for rate/pitch, whose ranges
// start above 0; volume's range includes 0 as a legal, distinct value and
// must not use this sentinel (see resolveVolume).
func clampedOrDefault(v, lo, hi, def float64) (float64, bool) {
	if v == 0 {
		return def, true
	}
	if v < lo || v > hi {
		return 0, false
	}
	return v, true
}

// resolveVolume resolves settings.volume, where an omitted field (nil) takes
// def but an explicit 0.0 is a legal, distinct value (mute) that must not be
// replaced by the default.
func resolveVolume(v *float64, lo, hi, def float64) (float64, bool) {
	if v == nil {
		return def, true
	}
	if *v < lo || *v > hi {
		return 0, false
	}
	return *v, true
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.New(apierrors.InvalidRequest, "malformed JSON body").WriteJSON(w)
		return
	}

	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = "0"
	}
	normalized, ok := normalizeVoiceID(voiceID)
	if !ok {
		apierrors.New(apierrors.InvalidRequest, "voice_id must be \"0\" or a UUID string").WriteJSON(w)
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		apierrors.New(apierrors.EmptyText, "text is empty after trimming").WriteJSON(w)
		return
	}

	bundle := s.runtime.Bundle()
	if !bundle.VoiceStore.Exists(normalized) {
		apierrors.New(apierrors.VoiceNotFound, "unknown voice id").WriteJSON(w)
		return
	}
	if !bundle.Synthesizer.SupportsVoiceID(normalized) {
		apierrors.New(apierrors.ModelNotReady, "the active backend cannot serve this voice").WriteJSON(w)
		return
	}

	rate, ok := clampedOrDefault(req.Settings.Rate, 0.25, 4.0, 1.0)
	if !ok {
		apierrors.New(apierrors.InvalidRequest, "settings.rate must be in [0.25, 4.0]").WriteJSON(w)
		return
	}
	pitch, ok := clampedOrDefault(req.Settings.Pitch, 0.5, 2.0, 1.0)
	if !ok {
		apierrors.New(apierrors.InvalidRequest, "settings.pitch must be in [0.5, 2.0]").WriteJSON(w)
		return
	}
	volume, ok := resolveVolume(req.Settings.Volume, 0.0, 2.0, 1.0)
	if !ok {
		apierrors.New(apierrors.InvalidRequest, "settings.volume must be in [0.0, 2.0]").WriteJSON(w)
		return
	}
	maxChars := req.Settings.Chunking.MaxChars
	if maxChars == 0 {
		maxChars = 400
	}
	if maxChars < 100 || maxChars > 2000 {
		apierrors.New(apierrors.InvalidRequest, "settings.chunking.max_chars must be in [100, 2000]").WriteJSON(w)
		return
	}

	job := s.runtime.StartSpeak(jobs.Request{
		VoiceID:  normalized,
		Text:     text,
		Language: req.Language,
		MaxChars: maxChars,
		Rate:     rate,
		Pitch:    pitch,
		Volume:   volume,
	})
	s.metrics.ObserveJobEvent("started")

	respondJSON(w, http.StatusOK, map[string]any{
		"job_id": job.JobID,
		"ws_url": fmt.Sprintf("ws://%s:%d/v1/stream/%s", bundle.Config.Host, bundle.Config.Port, job.JobID),
	})
}

type cancelRequest struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.New(apierrors.InvalidRequest, "malformed JSON body").WriteJSON(w)
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		apierrors.New(apierrors.InvalidRequest, "job_id is required").WriteJSON(w)
		return
	}
	if !s.runtime.CancelActive(req.JobID) {
		apierrors.New(apierrors.JobNotFound, "unknown job id").WriteJSON(w)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"canceled": true})
}

type warmupRequest struct {
	Wait   bool   `json:"wait"`
	Force  bool   `json:"force"`
	Reason string `json:"reason"`
}

func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request) {
	var req warmupRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		apierrors.New(apierrors.InvalidRequest, "malformed JSON body").WriteJSON(w)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}
	accepted := s.runtime.TriggerWarmup(r.Context(), req.Wait, req.Force, reason)
	respondJSON(w, http.StatusOK, map[string]any{
		"accepted": accepted,
		"warmup":   s.runtime.Snapshot().Warmup,
	})
}
