// Package httpapi exposes the VExcel workflows over HTTP for the browser UI.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Todor-5rov/Vexcel/internal/assistant"
	"github.com/Todor-5rov/Vexcel/internal/auth"
	"github.com/Todor-5rov/Vexcel/internal/cloud"
	"github.com/Todor-5rov/Vexcel/internal/config"
	"github.com/Todor-5rov/Vexcel/internal/events"
	"github.com/Todor-5rov/Vexcel/internal/ingest"
	"github.com/Todor-5rov/Vexcel/internal/store"
	"github.com/Todor-5rov/Vexcel/internal/voice"
	"github.com/Todor-5rov/Vexcel/internal/xlsx"
)

// Files is the file workflow surface, implemented by *ingest.Uploader.
type Files interface {
	Upload(ctx context.Context, ownerID string, up ingest.Upload) (*ingest.Report, error)
	Get(ctx context.Context, ownerID, id string) (*store.LogicalFile, error)
	List(ctx context.Context, ownerID string) ([]store.LogicalFile, error)
	Delete(ctx context.Context, ownerID, id string) error
	RefreshEmbed(ctx context.Context, ownerID, id string, allowEdit bool) (string, error)
	Preview(ctx context.Context, ownerID, id string, maxRows int) (*xlsx.Table, error)
	Save(ctx context.Context, ownerID, id string, rows [][]string) (*ingest.SaveReport, error)
}

// Assistant processes chat commands.
type Assistant interface {
	ProcessCommand(ctx context.Context, cmd assistant.Command) assistant.Reply
}

// Analyst answers read-only questions.
type Analyst interface {
	Ask(ctx context.Context, q assistant.Question) (*assistant.Answer, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, model string) (*voice.Transcription, error)
}

// HealthChecker probes the Excel MCP server.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// Config wires a Server.
type Config struct {
	Files     Files
	Assistant Assistant
	Analyst   Analyst
	// Voice returns nil when no ElevenLabs key is configured.
	Voice    func() Transcriber
	Remote   HealthChecker
	Cloud    cloud.Store
	Hub      *events.Hub
	Auth     auth.Resolver
	Features func() config.Features
	Logger   *slog.Logger

	AllowedOrigins []string
	MaxUploadBytes int64
	MaxBodyBytes   int64
	VoiceModel     string
}

// Server routes API requests.
type Server struct {
	cfg Config
	log *slog.Logger
	mux *http.ServeMux
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Features == nil {
		cfg.Features = config.CurrentFeatures
	}
	if cfg.Cloud == nil {
		cfg.Cloud = cloud.Disabled{}
	}
	if cfg.Voice == nil {
		cfg.Voice = func() Transcriber { return nil }
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = xlsx.MaxUploadBytes
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if cfg.VoiceModel == "" {
		cfg.VoiceModel = voice.DefaultModel
	}
	s := &Server{cfg: cfg, log: cfg.Logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	owned := s.cfg.Auth.Middleware

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/check-api-key", s.handleCheckOpenAI)
	s.mux.HandleFunc("GET /api/check-elevenlabs-key", s.handleCheckElevenLabs)
	s.mux.HandleFunc("POST /api/voice/speech-to-text", s.handleSpeechToText)

	s.mux.Handle("POST /api/files", owned(http.HandlerFunc(s.handleUpload)))
	s.mux.Handle("GET /api/files", owned(http.HandlerFunc(s.handleList)))
	s.mux.Handle("GET /api/files/{id}", owned(http.HandlerFunc(s.handleGet)))
	s.mux.Handle("DELETE /api/files/{id}", owned(http.HandlerFunc(s.handleDelete)))
	s.mux.Handle("GET /api/files/{id}/embed", owned(http.HandlerFunc(s.handleEmbed)))
	s.mux.Handle("GET /api/files/{id}/data", owned(http.HandlerFunc(s.handlePreview)))
	s.mux.Handle("PUT /api/files/{id}/data", owned(http.HandlerFunc(s.handleSave)))
	s.mux.Handle("POST /api/ai/process", owned(http.HandlerFunc(s.handleProcess)))
	s.mux.Handle("POST /api/ai/analyze", owned(http.HandlerFunc(s.handleAnalyze)))
	s.mux.Handle("GET /api/events", owned(http.HandlerFunc(s.handleEvents)))
}

// Handler returns the routed handler with CORS, correlation ids and access
// logging applied.
func (s *Server) Handler() http.Handler {
	return s.withCorrelation(s.withLogging(s.withCORS(s.mux)))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	f := s.cfg.Features()
	mcpHealthy := s.cfg.Remote != nil && s.cfg.Remote.Health(r.Context())
	onedrive := false
	if st, err := s.cfg.Cloud.Status(r.Context()); err == nil {
		onedrive = st.Enabled
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"openai":     f.OpenAI,
		"elevenlabs": f.ElevenLabs,
		"mcp":        mcpHealthy,
		"onedrive":   onedrive,
		"auth":       f.Auth,
		"backup":     f.Backup,
	})
}

func (s *Server) handleCheckOpenAI(w http.ResponseWriter, _ *http.Request) {
	f := s.cfg.Features()
	writeJSON(w, http.StatusOK, map[string]any{"hasApiKey": f.OpenAI, "keyLength": f.OpenAIKeyLength})
}

func (s *Server) handleCheckElevenLabs(w http.ResponseWriter, _ *http.Request) {
	f := s.cfg.Features()
	writeJSON(w, http.StatusOK, map[string]any{"hasApiKey": f.ElevenLabs, "keyLength": f.ElevenLabsKeyLength})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hub == nil {
		writeError(w, r, http.StatusNotImplemented, "not_configured", "event stream is not enabled")
		return
	}
	s.cfg.Hub.ServeWebsocket(w, r, owner(r), s.cfg.AllowedOrigins)
}

func owner(r *http.Request) string {
	id, _ := auth.OwnerFrom(r.Context())
	return id
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "bad_request", "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error":         code,
		"message":       message,
		"correlationId": r.Header.Get(headerCorrelationID),
	})
}

const headerCorrelationID = "X-Correlation-Id"

func (s *Server) withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerCorrelationID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(headerCorrelationID, id)
		}
		w.Header().Set(headerCorrelationID, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("correlation_id", r.Header.Get(headerCorrelationID)))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-User-ID, X-Correlation-Id")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
