// Package httpapi implements the engine's HTTP and WebSocket surface: voice
// management, speak/cancel/warmup/activate control routes, and the
// /v1/stream/{job_id} audio event stream, all gated by a bearer token.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voicereader/speakd/internal/apierrors"
	"github.com/voicereader/speakd/internal/auth"
	"github.com/voicereader/speakd/internal/observability"
	"github.com/voicereader/speakd/internal/runtimeapp"
)

// QuitFunc is invoked by /v1/quit after the response is written.
type QuitFunc func()

// Server holds everything the route handlers close over: the runtime (which
// owns the currently active synthesizer/voice-store/job-manager bundle),
// metrics, the configured bearer token, and the WebSocket upgrader.
type Server struct {
	token    string
	runtime  *runtimeapp.Runtime
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	quit     QuitFunc
}

// New constructs a Server. allowAnyOrigin disables the same-origin check on
// WebSocket upgrades, matching a deployment that fronts the engine with a
// reverse proxy on a different host.
func New(token string, rt *runtimeapp.Runtime, metrics *observability.Metrics, allowAnyOrigin bool, quit QuitFunc) *Server {
	return &Server{
		token:   token,
		runtime: rt,
		metrics: metrics,
		quit:    quit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{"auth.bearer.v1"},
			CheckOrigin: func(r *http.Request) bool {
				if allowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router builds the chi mux for every route in the HTTP/WS surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requireBearer)

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/voices", s.handleListVoices)
	r.Post("/v1/voices/clone", s.handleCloneVoice)
	r.Patch("/v1/voices/{voice_id}", s.handleUpdateVoice)
	r.Delete("/v1/voices/{voice_id}", s.handleDeleteVoice)
	r.Post("/v1/speak", s.handleSpeak)
	r.Post("/v1/cancel", s.handleCancel)
	r.Post("/v1/warmup", s.handleWarmup)
	r.Post("/v1/models/activate", s.handleActivate)
	r.Post("/v1/models/prefetch", s.handlePrefetch)
	r.Post("/v1/quit", s.handleQuit)
	r.Get("/v1/stream/{job_id}", s.handleStream)

	return r
}

// requireBearer gates every HTTP route except /metrics behind the
// configured token. The WebSocket route performs its own check inside
// handleStream so it can also accept the subprotocol-pair form and reject
// with the correct close code instead of a bare 401.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/stream/") || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if !auth.CheckHTTP(r, s.token) {
			apierrors.New(apierrors.Unauthorized, "missing or invalid bearer token").WriteJSON(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEngineError(w http.ResponseWriter, err error) {
	var ee *apierrors.EngineError
	if errors.As(err, &ee) {
		ee.WriteJSON(w)
		return
	}
	apierrors.New(apierrors.InvalidRequest, err.Error()).WriteJSON(w)
}

func supportedLanguages() []string {
	return []string{"auto", "zh", "en", "ja", "ko", "de", "fr", "es", "pt", "ru", "it"}
}
