package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewJobStartedMarshalsType(t *testing.T) {
	frame := NewJobStarted("job-1")
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got := string(data); got != `{"type":"JOB_STARTED","job_id":"job-1"}` {
		t.Fatalf("Marshal() = %s", got)
	}
}

func TestNewAudioChunkSequenceAndTextRange(t *testing.T) {
	frame := NewAudioChunk("job-1", 1, "AQID", 24000, 1, TextRange{ChunkIndex: 0, StartChar: 0, EndChar: 5})
	if frame.Type != EventAudioChunk {
		t.Fatalf("Type = %q, want %q", frame.Type, EventAudioChunk)
	}
	if frame.Seq != 1 {
		t.Fatalf("Seq = %d, want 1", frame.Seq)
	}
	if frame.Audio.Format != "pcm_s16le" {
		t.Fatalf("Audio.Format = %q, want pcm_s16le", frame.Audio.Format)
	}
	if frame.TextRange.ChunkIndex != 0 || frame.TextRange.EndChar != 5 {
		t.Fatalf("unexpected text range: %+v", frame.TextRange)
	}
}

func TestTerminalEventsAreTerminal(t *testing.T) {
	for _, tt := range []EventType{EventJobDone, EventJobCanceled, EventJobError} {
		if !tt.IsTerminal() {
			t.Fatalf("%q should be terminal", tt)
		}
	}
	if EventJobStarted.IsTerminal() || EventAudioChunk.IsTerminal() {
		t.Fatalf("non-terminal events must not report IsTerminal")
	}
}

func TestNewJobErrorCarriesCodeAndMessage(t *testing.T) {
	event := NewJobError("job-1", "INFERENCE_FAILED", "boom")
	if event.Type != EventJobError {
		t.Fatalf("Type = %q, want %q", event.Type, EventJobError)
	}
	if event.Error == nil || event.Error.Code != "INFERENCE_FAILED" || event.Error.Message != "boom" {
		t.Fatalf("unexpected error payload: %+v", event.Error)
	}
}

func TestNewJobDoneAndCanceledHaveNoError(t *testing.T) {
	if NewJobDone("job-1").Error != nil {
		t.Fatalf("JOB_DONE must not carry an error object")
	}
	if NewJobCanceled("job-1").Error != nil {
		t.Fatalf("JOB_CANCELED must not carry an error object")
	}
}
