package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHandleStreamRejectsUnauthorizedWithCloseCode(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream/anything"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("ReadMessage() error = %v, want a *websocket.CloseError", err)
	}
	if closeErr.Code != closeAuthFailed {
		t.Fatalf("close code = %d, want %d", closeErr.Code, closeAuthFailed)
	}
}

func TestHandleStreamRejectsUnknownJobWithCloseCode(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream/does-not-exist"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("ReadMessage() error = %v, want a *websocket.CloseError", err)
	}
	if closeErr.Code != closeJobNotFound {
		t.Fatalf("close code = %d, want %d", closeErr.Code, closeJobNotFound)
	}
}

func TestHandleStreamDeliversEventsThroughJobDone(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	speakRec := doJSON(t, srv, http.MethodPost, "/v1/speak", speakRequest{VoiceID: "0", Text: "a short phrase"})
	if speakRec.Code != http.StatusOK {
		t.Fatalf("speak status = %d, body = %s", speakRec.Code, speakRec.Body.String())
	}
	var speakResp map[string]any
	if err := json.Unmarshal(speakRec.Body.Bytes(), &speakResp); err != nil {
		t.Fatalf("unmarshal speak response: %v", err)
	}
	jobID, _ := speakResp["job_id"].(string)
	if jobID == "" {
		t.Fatalf("speak response missing job_id: %v", speakResp)
	}

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream/" + jobID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	sawJobStarted := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v before a terminal frame arrived", err)
		}
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		switch frame.Type {
		case "JOB_STARTED":
			sawJobStarted = true
		case "JOB_DONE", "JOB_CANCELED", "JOB_ERROR":
			if !sawJobStarted {
				t.Fatalf("reached terminal frame %q without ever seeing JOB_STARTED", frame.Type)
			}
			return
		}
	}
}
