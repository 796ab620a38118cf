// Package synth implements the pluggable text-to-speech backend contract:
// Mock (deterministic tone generator), Qwen (subprocess custom-voice model),
// and Kyutai (voice-prompt-driven model), plus the construction-time auto
// fallback factory.
package synth

import "context"

// Audio is raw interleaved little-endian signed 16-bit PCM at SampleRate,
// always mono in this engine.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Status reports which backend is loaded and which operations are
// meaningful, mirroring the /v1/health response's runtime block.
type Status struct {
	Backend               string
	ModelLoaded            bool
	FallbackActive         bool
	Detail                 string
	SupportsVoiceClone     bool
	SupportsDefaultVoice   bool
	SupportsClonedVoices   bool
}

// ErrNotSupported is returned by operations a backend does not implement
// (e.g. cloning on the Qwen custom-voice backend); callers surface it as a
// recoverable VOICE_CLONE_FAILED error rather than aborting the process.
type ErrNotSupported struct {
	Backend string
	Op      string
}

func (e *ErrNotSupported) Error() string {
	return e.Backend + ": " + e.Op + " is not supported by this backend"
}

// VoiceSource is the input to PrepareClonedVoice: either a path to an
// already-normalized reference WAV, or PCM decoded in-process.
type VoiceSource struct {
	ReferenceWAVPath string
	ReferencePCM     []byte
	SampleRate       int
	RefText          string
}

// Synthesizer is the capability surface every backend variant implements.
// Not every backend makes every operation meaningful; unsupported ones
// return *ErrNotSupported.
type Synthesizer interface {
	// SupportsVoiceID reports whether voiceID can be passed to
	// SynthesizeChunk without erroring.
	SupportsVoiceID(voiceID string) bool

	// PrepareClonedVoice builds and persists a voice-prompt artifact for
	// voiceID from source, returning the path written (if any).
	PrepareClonedVoice(ctx context.Context, voiceID string, source VoiceSource) (promptPath string, err error)

	// ForgetVoice evicts any in-memory state cached for voiceID.
	ForgetVoice(voiceID string)

	// SynthesizeChunk is synchronous and CPU/GPU-bound; callers invoke it
	// off the event loop thread.
	SynthesizeChunk(ctx context.Context, text, voiceID, language string) (Audio, error)

	// Warmup exercises the backend once, typically with a short fixed
	// sentence, to pay initialization cost before the first real request.
	Warmup(ctx context.Context, text, language string) error

	// Status reports the backend's current capability and health snapshot.
	Status() Status

	// Close releases any subprocess or cached resources.
	Close() error
}
