package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Todor-5rov/Vexcel/internal/ai"
	"github.com/Todor-5rov/Vexcel/internal/assistant"
	"github.com/Todor-5rov/Vexcel/internal/mcp"
	"github.com/Todor-5rov/Vexcel/internal/voice"
)

type processRequest struct {
	assistant.Command
	// MCPFilePath is the older name of remoteFilePath.
	MCPFilePath string `json:"mcpFilePath,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	cmd := req.Command
	if cmd.RemoteFilePath == "" {
		cmd.RemoteFilePath = req.MCPFilePath
	}
	if strings.TrimSpace(cmd.UserMessage) == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "userMessage is required")
		return
	}
	if cmd.RemoteFilePath != "" {
		pathOwner, _, err := mcp.ParsePath(cmd.RemoteFilePath)
		if err == nil && pathOwner != owner(r) {
			writeError(w, r, http.StatusForbidden, "forbidden", "You can only edit your own files.")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.cfg.Assistant.ProcessCommand(r.Context(), cmd))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Analyst == nil {
		writeError(w, r, http.StatusNotImplemented, "not_configured", "analysis is not enabled")
		return
	}
	var q assistant.Question
	if !s.decodeJSON(w, r, &q) {
		return
	}
	ans, err := s.cfg.Analyst.Ask(r.Context(), q)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ans)
	case errors.Is(err, assistant.ErrNoQuestion):
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, ai.ErrMissingAPIKey):
		writeError(w, r, http.StatusServiceUnavailable, "not_configured", "AI provider is not configured.")
	default:
		s.log.Warn("analysis failed", "error", err, "correlation_id", r.Header.Get(headerCorrelationID))
		writeError(w, r, http.StatusBadGateway, "provider_error", "The AI provider could not answer right now.")
	}
}

const maxAudioBytes = 25 << 20

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	tr := s.cfg.Voice()
	if tr == nil {
		writeError(w, r, http.StatusServiceUnavailable, "not_configured", voice.ErrMissingAPIKey.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "No audio file provided")
		return
	}
	file, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "No audio file provided")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil || len(audio) == 0 {
		writeError(w, r, http.StatusBadRequest, "bad_request", "No audio file provided")
		return
	}

	model := r.FormValue("model")
	if model == "" {
		model = s.cfg.VoiceModel
	}
	res, err := tr.Transcribe(r.Context(), audio, hdr.Filename, model)
	if err != nil {
		var verr *voice.Error
		switch {
		case errors.As(err, &verr):
			writeError(w, r, verr.StatusCode, "transcription_failed", verr.Message)
		case errors.Is(err, voice.ErrNoSpeech):
			writeError(w, r, http.StatusBadRequest, "no_speech", err.Error())
		default:
			s.log.Warn("transcription failed", "error", err)
			writeError(w, r, http.StatusBadGateway, "transcription_failed", "Failed to process speech. Please try again.")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}
