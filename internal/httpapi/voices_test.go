package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"
)

func TestHandleListVoicesIncludesDefaultVoice(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/v1/voices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Voices []voiceSummary `json:"voices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Voices) != 1 || resp.Voices[0].VoiceID != "0" {
		t.Fatalf("Voices = %+v, want exactly the default voice", resp.Voices)
	}
}

func TestHandleCloneVoiceThenListThenDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	wav := buildMonoWAV16(16000, tonePCM16(8000))

	cloneRec := doJSON(t, srv, http.MethodPost, "/v1/voices/clone", cloneVoiceRequest{
		DisplayName: "Narrator",
		RefAudio:    cloneVoiceReferenceAudio{WAVBase64: base64.StdEncoding.EncodeToString(wav)},
		RefText:     "the quick brown fox",
		Language:    "en",
	})
	if cloneRec.Code != http.StatusCreated {
		t.Fatalf("clone status = %d, want %d, body = %s", cloneRec.Code, http.StatusCreated, cloneRec.Body.String())
	}

	var cloned voiceSummary
	if err := json.Unmarshal(cloneRec.Body.Bytes(), &cloned); err != nil {
		t.Fatalf("unmarshal clone response: %v", err)
	}
	if cloned.VoiceID == "" {
		t.Fatalf("cloned voice has empty voice_id")
	}
	if !cloned.HasReferenceAudio {
		t.Fatalf("cloned voice HasReferenceAudio = false, want true")
	}

	listRec := doJSON(t, srv, http.MethodGet, "/v1/voices", nil)
	var list struct {
		Voices []voiceSummary `json:"voices"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list response: %v", err)
	}
	if len(list.Voices) != 2 {
		t.Fatalf("Voices = %+v, want default + cloned", list.Voices)
	}

	deleteRec := doJSON(t, srv, http.MethodDelete, "/v1/voices/"+cloned.VoiceID, nil)
	if deleteRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d, body = %s", deleteRec.Code, http.StatusOK, deleteRec.Body.String())
	}
}

func TestHandleCloneVoiceRejectsBothPathAndInline(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/voices/clone", cloneVoiceRequest{
		DisplayName: "Narrator",
		RefAudio: cloneVoiceReferenceAudio{
			Path:      "/tmp/whatever.wav",
			WAVBase64: "not-checked",
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestHandleUpdateVoiceRejectsDefaultVoice(t *testing.T) {
	srv, _ := newTestServer(t)
	name := "New Name"
	rec := doJSON(t, srv, http.MethodPatch, "/v1/voices/0", updateVoiceRequest{DisplayName: &name})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusForbidden, rec.Body.String())
	}
}

func TestHandleDeleteVoiceRejectsDefaultVoice(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodDelete, "/v1/voices/0", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusForbidden, rec.Body.String())
	}
}

func TestNormalizeVoiceIDRejectsGarbage(t *testing.T) {
	if _, ok := normalizeVoiceID("not-a-uuid-or-zero"); ok {
		t.Fatalf("normalizeVoiceID accepted a non-UUID, non-zero string")
	}
	if id, ok := normalizeVoiceID(" 0 "); !ok || id != "0" {
		t.Fatalf("normalizeVoiceID(%q) = (%q, %v), want (0, true)", " 0 ", id, ok)
	}
}
