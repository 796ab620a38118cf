package runtimeapp

import (
	"context"
	"sync"
	"time"

	"github.com/voicereader/speakd/internal/observability"
	"github.com/voicereader/speakd/internal/synth"
)

// WarmupStatus is the lifecycle state of the single shared warmup slot.
type WarmupStatus string

const (
	WarmupNotStarted WarmupStatus = "not_started"
	WarmupRunning    WarmupStatus = "running"
	WarmupReady      WarmupStatus = "ready"
	WarmupError      WarmupStatus = "error"
)

// WarmupState is the externally-visible snapshot reported on /v1/health and
// /v1/warmup.
type WarmupState struct {
	Status          WarmupStatus `json:"status"`
	Runs            int          `json:"runs"`
	LastReason      string       `json:"last_reason,omitempty"`
	LastStartedAt   *time.Time   `json:"last_started_at,omitempty"`
	LastCompletedAt *time.Time   `json:"last_completed_at,omitempty"`
	LastDurationMS  int64        `json:"last_duration_ms,omitempty"`
	LastError       string       `json:"last_error,omitempty"`
}

// warmup coordinates the single shared warmup slot: at most one warmup runs
// at a time, and trigger() is idempotent with respect to overlapping calls.
type warmup struct {
	mu      sync.Mutex
	state   WarmupState
	running chan struct{}
	metrics *observability.Metrics
}

func newWarmup(metrics *observability.Metrics) *warmup {
	return &warmup{state: WarmupState{Status: WarmupNotStarted}, metrics: metrics}
}

func (w *warmup) Snapshot() WarmupState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// AwaitRunning blocks until any currently-running warmup completes. It is a
// no-op if no warmup is running.
func (w *warmup) AwaitRunning() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if running != nil {
		<-running
	}
}

func (w *warmup) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = WarmupState{Status: WarmupNotStarted}
}

// Trigger starts a warmup of getSynth() with (text, language) unless one is
// already running or status/force preconditions are unmet. If wait, the
// call blocks until the warmup completes, including one that was already in
// flight when the call arrived; accepted reports whether this call actually
// started a new run.
func (w *warmup) Trigger(ctx context.Context, getSynth func() synth.Synthesizer, text, language string, wait, force bool, reason string) (accepted bool) {
	w.mu.Lock()
	if w.running != nil {
		runningCh := w.running
		w.mu.Unlock()
		if wait {
			<-runningCh
		}
		return false
	}
	if !(force || w.state.Status == WarmupNotStarted || w.state.Status == WarmupError) {
		w.mu.Unlock()
		return false
	}

	done := make(chan struct{})
	w.running = done
	started := time.Now().UTC()
	w.state.Status = WarmupRunning
	w.state.LastReason = reason
	w.state.LastStartedAt = &started
	w.mu.Unlock()

	run := func() {
		defer close(done)
		err := getSynth().Warmup(ctx, text, language)
		completed := time.Now().UTC()
		duration := completed.Sub(started)

		w.mu.Lock()
		w.state.Runs++
		w.state.LastCompletedAt = &completed
		w.state.LastDurationMS = duration.Milliseconds()
		status := "ready"
		if err != nil {
			w.state.Status = WarmupError
			w.state.LastError = err.Error()
			status = "error"
		} else {
			w.state.Status = WarmupReady
			w.state.LastError = ""
		}
		w.running = nil
		w.mu.Unlock()

		if w.metrics != nil {
			w.metrics.ObserveWarmup(status, duration)
		}
	}

	if wait {
		run()
	} else {
		go run()
	}
	return true
}
