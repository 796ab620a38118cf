// Package jobs implements the speak-job lifecycle: chunked synthesis,
// post-processing, and fan-out of ordered events to WebSocket subscribers.
package jobs

import (
	"context"
	"encoding/base64"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicereader/speakd/internal/apierrors"
	"github.com/voicereader/speakd/internal/audio"
	"github.com/voicereader/speakd/internal/chunker"
	"github.com/voicereader/speakd/internal/protocol"
	"github.com/voicereader/speakd/internal/synth"
)

const (
	subscriberQueueCapacity = 128
	maxTrackedJobs          = 64
)

// Request is the caller-validated parameters for a new speak job.
type Request struct {
	VoiceID  string
	Text     string
	Language string
	MaxChars int
	Rate     float64
	Pitch    float64 // reserved: accepted and stored, never applied
	Volume   float64
}

// State is a job's lifecycle record: identity, settings, and the
// append-only event history with its live subscriber set. Once the done
// channel is closed no further event is ever appended to history.
type State struct {
	JobID     string
	VoiceID   string
	Text      string
	Language  string
	MaxChars  int
	Rate      float64
	Pitch     float64
	Volume    float64
	CreatedAt time.Time

	mu          sync.Mutex
	history     []any
	subscribers map[chan any]struct{}
	terminal    bool

	cancel context.CancelFunc
	done   chan struct{}
}

// History returns a snapshot of every event published so far.
func (s *State) History() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]any, len(s.history))
	copy(snapshot, s.history)
	return snapshot
}

// Done reports whether the job has reached a terminal state.
func (s *State) Done() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// publish appends event to history and fans it out to every subscriber's
// queue with a non-blocking send. A subscriber whose queue is full is
// dropped and its channel closed rather than letting it stall the worker.
// On a terminal event every remaining subscriber channel is closed after
// delivery, the Go equivalent of the sentinel value used to unblock a
// subscriber waiting on a channel that will receive nothing further.
func (s *State) publish(event any, terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	s.history = append(s.history, event)
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			delete(s.subscribers, ch)
			close(ch)
		}
	}
	if terminal {
		s.terminal = true
		for ch := range s.subscribers {
			close(ch)
		}
		s.subscribers = map[chan any]struct{}{}
	}
}

// subscribe allocates a fresh delivery queue and returns it together with
// the history snapshot at the moment of subscription. The allocation and
// snapshot happen under the same lock as publish, so the subscriber
// observes exactly snapshot ++ subsequently-published-events with no gap.
func (s *State) subscribe() (chan any, []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]any, len(s.history))
	copy(snapshot, s.history)

	ch := make(chan any, subscriberQueueCapacity)
	if s.terminal {
		close(ch)
		return ch, snapshot
	}
	s.subscribers[ch] = struct{}{}
	return ch, snapshot
}

func (s *State) unsubscribe(ch chan any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, ch)
}

// Manager tracks every job started since process (or activation) start,
// bounding memory by pruning finished jobs once the map exceeds
// maxTrackedJobs.
type Manager struct {
	mu          sync.Mutex
	jobs        map[string]*State
	activeJobID string
	synthesizer synth.Synthesizer
}

// NewManager constructs a Manager bound to synthesizer. A fresh Manager is
// created on every model activation, since the prior one's synthesizer is
// being replaced wholesale.
func NewManager(synthesizer synth.Synthesizer) *Manager {
	return &Manager{jobs: make(map[string]*State), synthesizer: synthesizer}
}

// StartJob cancels any in-flight active job (without waiting for it),
// allocates a new job, and spawns its worker goroutine.
func (m *Manager) StartJob(req Request) *State {
	ctx, cancel := context.WithCancel(context.Background())
	job := &State{
		JobID:       uuid.NewString(),
		VoiceID:     req.VoiceID,
		Text:        req.Text,
		Language:    req.Language,
		MaxChars:    req.MaxChars,
		Rate:        req.Rate,
		Pitch:       req.Pitch,
		Volume:      req.Volume,
		CreatedAt:   time.Now().UTC(),
		subscribers: make(map[chan any]struct{}),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	if m.activeJobID != "" {
		if prior, ok := m.jobs[m.activeJobID]; ok {
			prior.cancel()
		}
	}
	m.jobs[job.JobID] = job
	m.activeJobID = job.JobID
	m.prune()
	m.mu.Unlock()

	go m.run(ctx, job)
	return job
}

// prune must be called with m.mu held. It removes the oldest finished jobs
// first once the tracked count exceeds maxTrackedJobs.
func (m *Manager) prune() {
	if len(m.jobs) <= maxTrackedJobs {
		return
	}
	var finished []*State
	for _, j := range m.jobs {
		if j.Done() {
			finished = append(finished, j)
		}
	}
	sort.Slice(finished, func(i, k int) bool { return finished[i].CreatedAt.Before(finished[k].CreatedAt) })

	excess := len(m.jobs) - maxTrackedJobs
	for i := 0; i < excess && i < len(finished); i++ {
		delete(m.jobs, finished[i].JobID)
	}
}

func (m *Manager) run(ctx context.Context, job *State) {
	defer func() {
		close(job.done)
		m.mu.Lock()
		if m.activeJobID == job.JobID {
			m.activeJobID = ""
		}
		m.mu.Unlock()
	}()

	job.publish(protocol.NewJobStarted(job.JobID), false)

	chunks, err := chunker.Split(job.Text, job.MaxChars, 1)
	if err != nil {
		job.publish(protocol.NewJobError(job.JobID, string(apierrors.InferenceFailed), err.Error()), true)
		return
	}

	seq := 0
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			job.publish(protocol.NewJobCanceled(job.JobID), true)
			return
		}

		synthesized, err := m.synthesizer.SynthesizeChunk(ctx, chunk.Text, job.VoiceID, job.Language)
		if err != nil {
			job.publish(protocol.NewJobError(job.JobID, string(apierrors.InferenceFailed), err.Error()), true)
			return
		}
		if ctx.Err() != nil {
			// The chunk already finished synthesizing; its output is
			// dropped rather than published, per the cancellation contract.
			job.publish(protocol.NewJobCanceled(job.JobID), true)
			return
		}

		pcm, err := audio.ApplyPlaybackControls(ctx, synthesized.PCM, synthesized.SampleRate, audio.PlaybackControls{
			Rate:   job.Rate,
			Volume: job.Volume,
		})
		if err != nil {
			job.publish(protocol.NewJobError(job.JobID, string(apierrors.InferenceFailed), err.Error()), true)
			return
		}
		if ctx.Err() != nil {
			job.publish(protocol.NewJobCanceled(job.JobID), true)
			return
		}

		seq++
		channels := synthesized.Channels
		if channels == 0 {
			channels = 1
		}
		event := protocol.NewAudioChunk(
			job.JobID, seq, base64.StdEncoding.EncodeToString(pcm),
			synthesized.SampleRate, channels,
			protocol.TextRange{ChunkIndex: chunk.ChunkIndex, StartChar: chunk.StartChar, EndChar: chunk.EndChar},
		)
		job.publish(event, false)

		runtime.Gosched()
	}

	if ctx.Err() != nil {
		job.publish(protocol.NewJobCanceled(job.JobID), true)
		return
	}
	job.publish(protocol.NewJobDone(job.JobID), true)
}

// CancelJob idempotently signals cancellation; returns false if jobID is
// unknown. Signaling does not wait for the worker to observe it.
func (m *Manager) CancelJob(jobID string) bool {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	job.cancel()
	return true
}

// Subscribe attaches a new delivery queue to jobID, returning it together
// with the history snapshot at subscription time. ok is false if jobID is
// unknown.
func (m *Manager) Subscribe(jobID string) (ch chan any, history []any, ok bool) {
	m.mu.Lock()
	job, found := m.jobs[jobID]
	m.mu.Unlock()
	if !found {
		return nil, nil, false
	}
	ch, history = job.subscribe()
	return ch, history, true
}

// Unsubscribe detaches ch from jobID's subscriber set.
func (m *Manager) Unsubscribe(jobID string, ch chan any) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}
	job.unsubscribe(ch)
}

// JobExists reports whether jobID is currently tracked.
func (m *Manager) JobExists(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[jobID]
	return ok
}

// ActiveJobInFlight reports whether the currently active job has not yet
// reached a terminal state, gating model activation per the runtime lock
// contract.
func (m *Manager) ActiveJobInFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeJobID == "" {
		return false
	}
	job, ok := m.jobs[m.activeJobID]
	if !ok {
		return false
	}
	return !job.Done()
}
