package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/detect"
	"github.com/palisadehq/palisade/internal/events"
	"github.com/palisadehq/palisade/internal/pipeline"
)

const maxRequestBody = 1 << 20 // 1 MiB

// DetectRequest is the POST /v1/detect body.
type DetectRequest struct {
	Text   string `json:"text"`
	Layers []int  `json:"layers,omitempty"`
}

// MatchesRequest is the POST /v1/detect/matches body.
type MatchesRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.detector.Detect(r.Context(), req.Text, pipeline.Options{Layers: req.Layers})
	if err != nil {
		switch {
		case errors.Is(err, detect.ErrInvalidLayer):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, detect.ErrInputTooLong):
			s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			s.logger.Error("detection failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "detection failed")
		}
		return
	}

	if s.hub != nil && s.config.Events.Enabled {
		event := events.NewDetectionEvent(requestIDFrom(r.Context()), result, false)
		if s.config.Events.IncludeInputs {
			event.InputPreview = preview(req.Text, 120)
		}
		s.hub.Broadcast(events.Event{
			Type:      events.EventTypeDetection,
			RequestID: event.RequestID,
			Data:      event,
		})
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTopMatches(w http.ResponseWriter, r *http.Request) {
	if s.matcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "similarity layer not configured")
		return
	}

	var req MatchesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	matches, err := s.matcher.TopMatches(r.Context(), req.Text, req.TopK)
	if err != nil {
		s.logger.Error("corpus match failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "embedding backend unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":             "palisade",
		"version":          Version,
		"available_layers": s.detector.AvailableLayers(),
		"uptime":           time.Since(s.started).Round(time.Second).String(),
		"events_enabled":   s.hub != nil && s.config.Events.Enabled,
	}
	if s.hub != nil {
		info["event_clients"] = s.hub.ActiveClients()
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestBody {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", maxRequestBody))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
