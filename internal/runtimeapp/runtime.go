// Package runtimeapp wires the synthesizer, voice store, and job manager
// into one atomically-swappable bundle and implements the activate/warmup
// control plane around it.
package runtimeapp

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicereader/speakd/internal/apierrors"
	"github.com/voicereader/speakd/internal/config"
	"github.com/voicereader/speakd/internal/jobs"
	"github.com/voicereader/speakd/internal/observability"
	"github.com/voicereader/speakd/internal/synth"
	"github.com/voicereader/speakd/internal/voicestore"
)

// Bundle is the set of components that change together on every model
// activation: a new synthesizer implies a new voice store (keyed by model
// id) and a fresh Job Manager bound to it.
type Bundle struct {
	Synthesizer synth.Synthesizer
	VoiceStore  *voicestore.Store
	Jobs        *jobs.Manager
	Config      config.EngineConfig
	ModelID     string
}

// Snapshot is the runtime block rendered by /v1/health and /v1/models/activate.
type Snapshot struct {
	Backend              string      `json:"backend"`
	ModelLoaded          bool        `json:"model_loaded"`
	FallbackActive       bool        `json:"fallback_active"`
	Detail               string      `json:"detail,omitempty"`
	SupportsDefaultVoice bool        `json:"supports_default_voice"`
	SupportsClonedVoices bool        `json:"supports_cloned_voices"`
	Warmup               WarmupState `json:"warmup"`
}

// Runtime owns the current Bundle behind an atomic pointer for lock-free
// reads, and a mutex serializing the mutating operations (speak, cancel,
// activate) per the global runtime lock described by the concurrency model.
type Runtime struct {
	mu      sync.Mutex
	bundle  atomic.Pointer[Bundle]
	warmup  *warmup
	metrics *observability.Metrics
}

// New constructs the initial Runtime from cfg, building the first
// synthesizer via the same factory policy used on every later activation.
func New(ctx context.Context, cfg config.EngineConfig, metrics *observability.Metrics) (*Runtime, error) {
	bundle, err := buildBundle(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{warmup: newWarmup(metrics), metrics: metrics}
	rt.bundle.Store(bundle)
	return rt, nil
}

func buildBundle(ctx context.Context, cfg config.EngineConfig) (*Bundle, error) {
	synthesizer, err := synth.Create(ctx, cfg, kyutaiConfigFromEngine(cfg), qwenConfigFromEngine(cfg))
	if err != nil {
		return nil, err
	}
	store, err := voicestore.New(cfg.DataDir, cfg.ActiveModelID)
	if err != nil {
		_ = synthesizer.Close()
		return nil, err
	}
	return &Bundle{
		Synthesizer: synthesizer,
		VoiceStore:  store,
		Jobs:        jobs.NewManager(synthesizer),
		Config:      cfg,
		ModelID:     cfg.ActiveModelID,
	}, nil
}

// Bundle returns the currently active bundle. Callers must not mutate it;
// activation replaces the pointer wholesale rather than editing in place.
func (rt *Runtime) Bundle() *Bundle {
	return rt.bundle.Load()
}

// Snapshot reports the current backend/warmup status.
func (rt *Runtime) Snapshot() Snapshot {
	b := rt.Bundle()
	status := b.Synthesizer.Status()
	return Snapshot{
		Backend:              status.Backend,
		ModelLoaded:          status.ModelLoaded,
		FallbackActive:       status.FallbackActive,
		Detail:               status.Detail,
		SupportsDefaultVoice: status.SupportsDefaultVoice,
		SupportsClonedVoices: status.SupportsClonedVoices,
		Warmup:               rt.warmup.Snapshot(),
	}
}

// TriggerWarmup starts (or awaits) a warmup of the currently active
// synthesizer using the active config's warmup text/language.
func (rt *Runtime) TriggerWarmup(ctx context.Context, wait, force bool, reason string) bool {
	return rt.warmup.Trigger(ctx, func() synth.Synthesizer { return rt.Bundle().Synthesizer },
		rt.Bundle().Config.WarmupText, rt.Bundle().Config.WarmupLanguage, wait, force, reason)
}

// StartupWarmup triggers the startup warmup if the active config requests
// it, matching the non-waiting, non-forcing startup trigger.
func (rt *Runtime) StartupWarmup(ctx context.Context) {
	if !rt.Bundle().Config.WarmupOnStartup {
		return
	}
	rt.TriggerWarmup(ctx, false, false, "startup")
}

// ActivateRequest overlays non-nil fields onto the current config before
// constructing a replacement bundle.
type ActivateRequest struct {
	SynthBackend       *string
	ActiveModelID      *string
	QwenModelName      *string
	QwenDeviceMap      *string
	QwenDType          *string
	QwenAttn           *string
	QwenDefaultSpeaker *string
	KyutaiModelName    *string
	KyutaiVoicePrompt  *string
	WarmupWait         *bool
	WarmupForce        *bool
	Reason             *string
}

// retireGrace is how long a retired bundle's synthesizer is kept open after
// the active pointer moves past it, so a request that already read the old
// *Bundle before the swap can still finish against a live synthesizer.
const retireGrace = 5 * time.Second

// Activate implements the 7-step activation protocol under the global
// runtime lock: reject on an in-flight job, await any running warmup,
// overlay the request onto the current config, construct a replacement
// synthesizer, atomically swap the bundle, then reset and re-trigger
// warmup. The bundle being replaced is retired, not dropped: its
// synthesizer is closed after retireGrace once no outstanding request
// should still reference it.
func (rt *Runtime) Activate(ctx context.Context, req ActivateRequest) (Bundle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	current := rt.Bundle()
	if current.Jobs.ActiveJobInFlight() {
		return Bundle{}, apierrors.New(apierrors.JobInProgress, "a speak job is currently in flight")
	}

	rt.warmup.AwaitRunning()

	newCfg := overlayConfig(current.Config, req)
	newBundle, err := buildBundle(ctx, newCfg)
	if err != nil {
		return Bundle{}, apierrors.New(apierrors.ModelNotReady, err.Error())
	}
	rt.bundle.Store(newBundle)
	rt.retireBundle(current)

	rt.warmup.Reset()
	warmupWait, warmupForce, reason := true, true, "activate"
	if req.WarmupWait != nil {
		warmupWait = *req.WarmupWait
	}
	if req.WarmupForce != nil {
		warmupForce = *req.WarmupForce
	}
	if req.Reason != nil {
		reason = *req.Reason
	}
	rt.TriggerWarmup(ctx, warmupWait, warmupForce, reason)

	return *newBundle, nil
}

// retireBundle closes prev's synthesizer after retireGrace, off the
// runtime lock so Activate does not block on shutdown.
func (rt *Runtime) retireBundle(prev *Bundle) {
	if prev == nil || prev.Synthesizer == nil {
		return
	}
	time.AfterFunc(retireGrace, func() {
		_ = prev.Synthesizer.Close()
	})
}

// CancelActive cancels the currently active job under the runtime lock,
// matching the serialization the concurrency model requires for mutating
// routes. Returns false if jobID is unknown to the active bundle.
func (rt *Runtime) CancelActive(jobID string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.Bundle().Jobs.CancelJob(jobID)
}

// StartSpeak starts a new job under the runtime lock.
func (rt *Runtime) StartSpeak(req jobs.Request) *jobs.State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.Bundle().Jobs.StartJob(req)
}

func overlayConfig(current config.EngineConfig, req ActivateRequest) config.EngineConfig {
	next := current
	if req.SynthBackend != nil {
		next.SynthBackend = *req.SynthBackend
	}
	if req.ActiveModelID != nil {
		next.ActiveModelID = *req.ActiveModelID
	}
	if req.QwenModelName != nil {
		next.QwenModelName = *req.QwenModelName
	}
	if req.QwenDeviceMap != nil {
		next.QwenDeviceMap = *req.QwenDeviceMap
	}
	if req.QwenDType != nil {
		next.QwenDType = *req.QwenDType
	}
	if req.QwenAttn != nil {
		next.QwenAttn = *req.QwenAttn
	}
	if req.QwenDefaultSpeaker != nil {
		next.QwenDefaultSpeaker = *req.QwenDefaultSpeaker
	}
	if req.KyutaiModelName != nil {
		next.KyutaiModelName = *req.KyutaiModelName
	}
	if req.KyutaiVoicePrompt != nil {
		next.KyutaiVoicePrompt = *req.KyutaiVoicePrompt
	}
	return next
}

// kyutaiConfigFromEngine derives the Kyutai backend's model mirror
// directory from the configured model name ("owner/repo" mirrored under
// <data>/models/owner/repo).
func kyutaiConfigFromEngine(cfg config.EngineConfig) synth.KyutaiConfig {
	return synth.KyutaiConfig{
		ModelMirrorDir:     modelMirrorPath(cfg.DataDir, cfg.KyutaiModelName),
		DataDir:            cfg.DataDir,
		DefaultVoicePrompt: cfg.KyutaiVoicePrompt,
		SampleRate:         cfg.KyutaiSampleRate,
	}
}

func qwenConfigFromEngine(cfg config.EngineConfig) synth.QwenConfig {
	return synth.QwenConfig{
		ModelName:          cfg.QwenModelName,
		DeviceMap:          cfg.QwenDeviceMap,
		DType:              cfg.QwenDType,
		AttnImplementation: cfg.QwenAttn,
		DefaultSpeaker:     cfg.QwenDefaultSpeaker,
	}
}

func modelMirrorPath(dataDir, modelName string) string {
	parts := strings.SplitN(modelName, "/", 2)
	if len(parts) == 2 {
		return filepath.Join(dataDir, "models", parts[0], parts[1])
	}
	return filepath.Join(dataDir, "models", modelName)
}
