// Package protocol defines the JSON frames the /v1/stream/{job_id}
// WebSocket emits. The stream is one-directional: the server pushes events,
// the client only reads until a terminal frame arrives and the connection
// closes.
package protocol

// EventType identifies a streamed job event.
type EventType string

const (
	EventJobStarted  EventType = "JOB_STARTED"
	EventAudioChunk  EventType = "AUDIO_CHUNK"
	EventJobDone     EventType = "JOB_DONE"
	EventJobCanceled EventType = "JOB_CANCELED"
	EventJobError    EventType = "JOB_ERROR"
)

// IsTerminal reports whether t ends a job's event stream.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventJobDone, EventJobCanceled, EventJobError:
		return true
	default:
		return false
	}
}

// JobStarted is the first frame published for every job.
type JobStarted struct {
	Type  EventType `json:"type"`
	JobID string    `json:"job_id"`
}

// NewJobStarted builds a JOB_STARTED frame.
func NewJobStarted(jobID string) JobStarted {
	return JobStarted{Type: EventJobStarted, JobID: jobID}
}

// AudioPayload is the nested audio object of an AUDIO_CHUNK frame.
type AudioPayload struct {
	Format       string `json:"format"`
	SampleRate   int    `json:"sample_rate"`
	Channels     int    `json:"channels"`
	DataBase64   string `json:"data_base64"`
}

// TextRange is the nested text_range object of an AUDIO_CHUNK frame,
// matching the chunker's TextChunk positions for the same segment.
type TextRange struct {
	ChunkIndex int `json:"chunk_index"`
	StartChar  int `json:"start_char"`
	EndChar    int `json:"end_char"`
}

// AudioChunk carries one synthesized, post-processed segment. Seq is
// strictly increasing starting at 1 within a job.
type AudioChunk struct {
	Type      EventType    `json:"type"`
	JobID     string       `json:"job_id"`
	Seq       int          `json:"seq"`
	Audio     AudioPayload `json:"audio"`
	TextRange TextRange    `json:"text_range"`
}

// NewAudioChunk builds an AUDIO_CHUNK frame from raw PCM and position data.
func NewAudioChunk(jobID string, seq int, pcmBase64 string, sampleRate, channels int, textRange TextRange) AudioChunk {
	return AudioChunk{
		Type:  EventAudioChunk,
		JobID: jobID,
		Seq:   seq,
		Audio: AudioPayload{
			Format:     "pcm_s16le",
			SampleRate: sampleRate,
			Channels:   channels,
			DataBase64: pcmBase64,
		},
		TextRange: textRange,
	}
}

// TerminalError is the optional error object on a JOB_ERROR frame.
type TerminalError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// TerminalEvent ends a job's event stream exactly once: JOB_DONE,
// JOB_CANCELED, or JOB_ERROR (the latter carrying Error).
type TerminalEvent struct {
	Type  EventType      `json:"type"`
	JobID string         `json:"job_id"`
	Error *TerminalError `json:"error,omitempty"`
}

// NewJobDone builds a JOB_DONE terminal frame.
func NewJobDone(jobID string) TerminalEvent {
	return TerminalEvent{Type: EventJobDone, JobID: jobID}
}

// NewJobCanceled builds a JOB_CANCELED terminal frame.
func NewJobCanceled(jobID string) TerminalEvent {
	return TerminalEvent{Type: EventJobCanceled, JobID: jobID}
}

// NewJobError builds a JOB_ERROR terminal frame carrying the failure code
// and message surfaced to the stream.
func NewJobError(jobID, code, message string) TerminalEvent {
	return TerminalEvent{
		Type:  EventJobError,
		JobID: jobID,
		Error: &TerminalError{Code: code, Message: message, Details: map[string]any{}},
	}
}
