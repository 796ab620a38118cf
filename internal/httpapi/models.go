package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/voicereader/speakd/internal/apierrors"
	"github.com/voicereader/speakd/internal/runtimeapp"
)

type activateRequest struct {
	SynthBackend       *string `json:"synth_backend"`
	ActiveModelID      *string `json:"active_model_id"`
	QwenModelName      *string `json:"qwen_model"`
	QwenDeviceMap      *string `json:"qwen_device_map"`
	QwenDType          *string `json:"qwen_dtype"`
	QwenAttn           *string `json:"qwen_attn_implementation"`
	QwenDefaultSpeaker *string `json:"qwen_speaker"`
	KyutaiModelName    *string `json:"kyutai_model"`
	KyutaiVoicePrompt  *string `json:"kyutai_voice_prompt"`
	WarmupWait         *bool   `json:"warmup_wait"`
	WarmupForce        *bool   `json:"warmup_force"`
	Reason             *string `json:"reason"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		apierrors.New(apierrors.InvalidRequest, "malformed JSON body").WriteJSON(w)
		return
	}
	if req.SynthBackend != nil {
		switch *req.SynthBackend {
		case "auto", "qwen", "kyutai", "mock":
		default:
			apierrors.New(apierrors.InvalidRequest, "synth_backend must be one of auto|qwen|kyutai|mock").WriteJSON(w)
			return
		}
	}

	bundle, err := s.runtime.Activate(r.Context(), runtimeapp.ActivateRequest{
		SynthBackend:       req.SynthBackend,
		ActiveModelID:      req.ActiveModelID,
		QwenModelName:      req.QwenModelName,
		QwenDeviceMap:      req.QwenDeviceMap,
		QwenDType:          req.QwenDType,
		QwenAttn:           req.QwenAttn,
		QwenDefaultSpeaker: req.QwenDefaultSpeaker,
		KyutaiModelName:    req.KyutaiModelName,
		KyutaiVoicePrompt:  req.KyutaiVoicePrompt,
		WarmupWait:         req.WarmupWait,
		WarmupForce:        req.WarmupForce,
		Reason:             req.Reason,
	})
	if err != nil {
		s.metrics.ObserveActivation("rejected")
		writeEngineError(w, err)
		return
	}
	s.metrics.ObserveActivation("reloaded")

	snapshot := s.runtime.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"reloaded":        true,
		"warmup_accepted": snapshot.Warmup.Status == runtimeapp.WarmupRunning || snapshot.Warmup.Status == runtimeapp.WarmupReady,
		"active_model_id": bundle.ModelID,
		"runtime": map[string]any{
			"backend":                snapshot.Backend,
			"model_loaded":           snapshot.ModelLoaded,
			"fallback_active":        snapshot.FallbackActive,
			"detail":                 snapshot.Detail,
			"supports_default_voice": snapshot.SupportsDefaultVoice,
			"supports_cloned_voices": snapshot.SupportsClonedVoices,
			"warmup":                 snapshot.Warmup,
		},
	})
}

type prefetchRequest struct {
	Mode string `json:"mode"`
}

// handlePrefetch reports which model mirrors already exist on disk for the
// requested mode's repositories. It never fetches over the network: no
// downloader client is wired into this engine, so prefetch degrades to a
// filesystem presence check callers can use before activating a backend.
func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	var req prefetchRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		apierrors.New(apierrors.InvalidRequest, "malformed JSON body").WriteJSON(w)
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = "qwen_all"
	}
	switch mode {
	case "qwen_all", "qwen_custom", "qwen_base", "all":
	default:
		apierrors.New(apierrors.InvalidRequest, "mode must be one of qwen_all|qwen_custom|qwen_base|all").WriteJSON(w)
		return
	}

	cfg := s.runtime.Bundle().Config
	candidates := prefetchCandidates(mode, cfg.QwenBaseModelName, cfg.QwenModelName, cfg.KyutaiModelName)
	modelsDir := filepath.Join(cfg.DataDir, "models")

	downloaded := []string{}
	savedTo := map[string]string{}
	for _, repo := range candidates {
		dir := filepath.Join(modelsDir, repo)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			downloaded = append(downloaded, repo)
			savedTo[repo] = dir
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"mode":         mode,
		"downloaded":   downloaded,
		"saved_to":     savedTo,
		"data_dir":     cfg.DataDir,
		"models_dir":   modelsDir,
		"hf_cache_dir": cfg.HFCacheDir,
	})
}

// prefetchCandidates resolves mode to the HuggingFace repos it covers.
// qwen_base and qwen_custom name distinct repos (base model vs. the
// custom-voice-cloning checkpoint); qwen_all covers both Qwen variants, and
// all additionally covers the Kyutai mirror.
func prefetchCandidates(mode, qwenBaseModel, qwenCustomModel, kyutaiModel string) []string {
	switch mode {
	case "qwen_base":
		return []string{qwenBaseModel}
	case "qwen_custom":
		return []string{qwenCustomModel}
	case "qwen_all":
		return []string{qwenBaseModel, qwenCustomModel}
	case "all":
		return []string{qwenBaseModel, qwenCustomModel, kyutaiModel}
	default:
		return nil
	}
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"quitting": true})
	if s.quit != nil {
		go s.quit()
	}
}
