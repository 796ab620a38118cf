package httpapi

import (
	"net/http"

	"github.com/voicereader/speakd/internal/config"
)

type capabilities struct {
	SupportsVoiceClone             bool     `json:"supports_voice_clone"`
	SupportsAudioChunkStream       bool     `json:"supports_audio_chunk_stream"`
	SupportsTrueStreamingInference bool     `json:"supports_true_streaming_inference"`
	Languages                      []string `json:"languages"`
}

type healthResponse struct {
	EngineVersion string                `json:"engine_version"`
	ActiveModelID string                `json:"active_model_id"`
	Device        string                `json:"device"`
	Capabilities  capabilities          `json:"capabilities"`
	Runtime       runtimeHealthSnapshot `json:"runtime"`
}

// runtimeHealthSnapshot mirrors runtimeapp.Snapshot for the wire, naming
// fields exactly as the health contract specifies.
type runtimeHealthSnapshot struct {
	Backend              string                  `json:"backend"`
	ModelLoaded          bool                    `json:"model_loaded"`
	FallbackActive       bool                    `json:"fallback_active"`
	Detail               string                  `json:"detail,omitempty"`
	SupportsDefaultVoice bool                    `json:"supports_default_voice"`
	SupportsClonedVoices bool                    `json:"supports_cloned_voices"`
	Warmup               warmupHealthSnapshot    `json:"warmup"`
}

type warmupHealthSnapshot struct {
	Status          string `json:"status"`
	Runs            int    `json:"runs"`
	LastReason      string `json:"last_reason,omitempty"`
	LastStartedAt   string `json:"last_started_at,omitempty"`
	LastCompletedAt string `json:"last_completed_at,omitempty"`
	LastDurationMS  int64  `json:"last_duration_ms,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	bundle := s.runtime.Bundle()
	snapshot := s.runtime.Snapshot()
	status := bundle.Synthesizer.Status()

	warmup := warmupHealthSnapshot{
		Status:         string(snapshot.Warmup.Status),
		Runs:           snapshot.Warmup.Runs,
		LastReason:     snapshot.Warmup.LastReason,
		LastDurationMS: snapshot.Warmup.LastDurationMS,
		LastError:      snapshot.Warmup.LastError,
	}
	if snapshot.Warmup.LastStartedAt != nil {
		warmup.LastStartedAt = snapshot.Warmup.LastStartedAt.Format(timeLayout)
	}
	if snapshot.Warmup.LastCompletedAt != nil {
		warmup.LastCompletedAt = snapshot.Warmup.LastCompletedAt.Format(timeLayout)
	}

	respondJSON(w, http.StatusOK, healthResponse{
		EngineVersion: config.EngineVersion,
		ActiveModelID: bundle.ModelID,
		Device:        bundle.Config.Device(),
		Capabilities: capabilities{
			SupportsVoiceClone:             status.SupportsVoiceClone,
			SupportsAudioChunkStream:       true,
			SupportsTrueStreamingInference: false,
			Languages:                      supportedLanguages(),
		},
		Runtime: runtimeHealthSnapshot{
			Backend:              snapshot.Backend,
			ModelLoaded:          snapshot.ModelLoaded,
			FallbackActive:       snapshot.FallbackActive,
			Detail:               snapshot.Detail,
			SupportsDefaultVoice: snapshot.SupportsDefaultVoice,
			SupportsClonedVoices: snapshot.SupportsClonedVoices,
			Warmup:               warmup,
		},
	})
}

const timeLayout = "2006-01-02T15:04:05.000Z"
