package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// QwenConfig configures the Qwen custom-voice backend, mirroring the Python
// reference's flash-attention-then-sdpa retry and default speaker label.
type QwenConfig struct {
	PythonPath       string
	WorkerScript     string
	ModelName        string
	DeviceMap        string
	DType            string
	AttnImplementation string
	DefaultSpeaker   string
}

// Qwen wraps a long-lived Python subprocess speaking newline-delimited JSON,
// the same facade idiom used for local worker backends elsewhere in this
// codebase: one persistent process, one request in flight at a time.
type Qwen struct {
	mu             sync.Mutex
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	dec            *json.Decoder
	closed         bool
	status         Status
	defaultSpeaker string
}

type qwenInitRequest struct {
	ID                 string `json:"id"`
	Op                 string `json:"op"`
	ModelName          string `json:"model_name"`
	DeviceMap          string `json:"device_map"`
	DType              string `json:"dtype"`
	AttnImplementation string `json:"attn_implementation"`
}

type qwenInitResponse struct {
	ID              string `json:"id"`
	OK              bool   `json:"ok"`
	Error           string `json:"error"`
	AttnUsed        string `json:"attn_used"`
	RetriedFromFlash bool  `json:"retried_from_flash"`
	SampleRate      int    `json:"sample_rate"`
}

type qwenSynthRequest struct {
	ID       string `json:"id"`
	Op       string `json:"op"`
	Text     string `json:"text"`
	Language string `json:"language"`
	Speaker  string `json:"speaker"`
}

type qwenSynthResponse struct {
	ID          string `json:"id"`
	OK          bool   `json:"ok"`
	Error       string `json:"error"`
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
}

var qwenLanguageMap = map[string]string{
	"auto": "Auto",
	"zh":   "Chinese",
	"en":   "English",
	"ja":   "Japanese",
	"ko":   "Korean",
	"de":   "German",
	"fr":   "French",
	"es":   "Spanish",
	"pt":   "Portuguese",
	"ru":   "Russian",
	"it":   "Italian",
}

func resolveQwenLanguage(language string) string {
	normalized := strings.ToLower(strings.TrimSpace(language))
	if normalized == "" {
		return "Auto"
	}
	if mapped, ok := qwenLanguageMap[normalized]; ok {
		return mapped
	}
	return language
}

// NewQwen launches the worker process and performs its model-load
// handshake with a single init request. NewQwen itself does not retry; when
// the worker reports that flash_attention_2 failed and it loaded with
// another attention implementation, that fallback is recorded in Detail.
func NewQwen(ctx context.Context, cfg QwenConfig) (*Qwen, error) {
	python := cfg.PythonPath
	if python == "" {
		python = "python3"
	}
	script := cfg.WorkerScript
	if script == "" {
		script = "scripts/qwen_worker.py"
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("synth: qwen worker script not found: %s", script)
	}

	cmd := exec.Command(python, "-u", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("synth: qwen worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("synth: qwen worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("synth: start qwen worker: %w", err)
	}

	q := &Qwen{cmd: cmd, stdin: stdin, dec: json.NewDecoder(bufio.NewReader(stdout)), defaultSpeaker: cfg.DefaultSpeaker}

	detail := fmt.Sprintf("model=%s, device_map=%s, dtype=%s, attn=%s",
		cfg.ModelName, cfg.DeviceMap, cfg.DType, cfg.AttnImplementation)

	init, err := q.sendInit(ctx, qwenInitRequest{
		Op:                 "init",
		ModelName:          cfg.ModelName,
		DeviceMap:          cfg.DeviceMap,
		DType:              cfg.DType,
		AttnImplementation: cfg.AttnImplementation,
	})
	if err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("synth: qwen init failed: %s", msg)
	}
	if !init.OK {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("synth: qwen init failed: %s", init.Error)
	}
	if init.RetriedFromFlash {
		detail = fmt.Sprintf("%s; flash_attention_2 failed; using attn=%s", detail, init.AttnUsed)
	}

	q.status = Status{
		Backend:              "qwen_custom_voice",
		ModelLoaded:          true,
		FallbackActive:       false,
		Detail:               detail,
		SupportsVoiceClone:   false,
		SupportsDefaultVoice: true,
		SupportsClonedVoices: false,
	}
	return q, nil
}

func (q *Qwen) sendInit(ctx context.Context, req qwenInitRequest) (qwenInitResponse, error) {
	req.ID = fmt.Sprintf("init-%d", time.Now().UnixNano())
	var resp qwenInitResponse
	if err := q.roundTrip(ctx, req, &resp); err != nil {
		return qwenInitResponse{}, err
	}
	return resp, nil
}

func (q *Qwen) roundTrip(_ context.Context, req any, resp any) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := q.stdin.Write(b); err != nil {
		return err
	}
	return q.dec.Decode(resp)
}

func (q *Qwen) SupportsVoiceID(voiceID string) bool { return voiceID == "0" }

func (q *Qwen) PrepareClonedVoice(context.Context, string, VoiceSource) (string, error) {
	return "", &ErrNotSupported{Backend: "qwen_custom_voice", Op: "prepare_cloned_voice"}
}

func (q *Qwen) ForgetVoice(string) {}

func (q *Qwen) SynthesizeChunk(ctx context.Context, text, voiceID, language string) (Audio, error) {
	if voiceID != "0" {
		return Audio{}, fmt.Errorf(`synth: qwen custom-voice backend currently supports only voice_id "0"`)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Audio{}, fmt.Errorf("synth: qwen worker closed")
	}

	req := qwenSynthRequest{
		ID:       fmt.Sprintf("req-%d", time.Now().UnixNano()),
		Op:       "synthesize",
		Text:     text,
		Language: resolveQwenLanguage(language),
		Speaker:  q.statusSpeaker(),
	}
	var resp qwenSynthResponse
	if err := q.roundTrip(ctx, req, &resp); err != nil {
		return Audio{}, fmt.Errorf("synth: qwen inference failed: %w", err)
	}
	if resp.ID != req.ID {
		return Audio{}, fmt.Errorf("synth: qwen worker out-of-sync (got %q, expected %q)", resp.ID, req.ID)
	}
	if !resp.OK {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown qwen error"
		}
		return Audio{}, fmt.Errorf("synth: qwen inference failed: %s", msg)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return Audio{}, fmt.Errorf("synth: decode qwen audio: %w", err)
	}
	sampleRate := resp.SampleRate
	if sampleRate <= 0 {
		sampleRate = mockSampleRate
	}
	return Audio{PCM: pcm, SampleRate: sampleRate, Channels: 1}, nil
}

func (q *Qwen) statusSpeaker() string { return q.defaultSpeaker }

func (q *Qwen) Warmup(ctx context.Context, text, language string) error {
	_, err := q.SynthesizeChunk(ctx, text, "0", language)
	return err
}

func (q *Qwen) Status() Status { return q.status }

func (q *Qwen) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	stdin := q.stdin
	cmd := q.cmd
	q.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-time.After(1200 * time.Millisecond):
		_ = cmd.Process.Kill()
		<-done
	case <-done:
	}
	return nil
}

