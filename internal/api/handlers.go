// File: internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/agent"
)

const maxBodyBytes = 1 << 20

type createSessionRequest struct {
	Name     string `json:"name"`
	Goal     string `json:"goal"`
	Platform string `json:"platform"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type activeRequest struct {
	ID string `json:"id"`
}

type activeResponse struct {
	ActiveSessionID string `json:"activeSessionId"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/messages", s.handleSendMessage)
			r.Post("/start", s.command(s.agent.Start))
			r.Post("/pause", s.command(s.agent.Pause))
			r.Post("/stop", s.command(s.agent.Stop))
			r.Post("/cancel", s.command(s.agent.Cancel))
			r.Post("/confirm", s.handleConfirm)
			r.Get("/summary", s.handleSummary)
			r.Get("/confirmation", s.handleConfirmation)
		})

		r.Get("/active", s.handleGetActive)
		r.Put("/active", s.handleSetActive)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.agent.Sessions())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	platform := s.defaultPlatform
	if req.Platform != "" {
		p, err := schemas.ParsePlatform(req.Platform)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		platform = p
	}

	var (
		sess schemas.Session
		err  error
	)
	if strings.TrimSpace(req.Goal) == "" {
		sess, err = s.agent.NewChat(platform)
	} else {
		sess, err = s.agent.CreateProject(req.Name, req.Goal, platform)
	}
	if err != nil {
		s.respondAgentError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.agent.Session(chi.URLParam(r, "id"))
	if err != nil {
		s.respondAgentError(w, err)
		return
	}
	s.respond(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	active, err := s.agent.Delete(chi.URLParam(r, "id"))
	if err != nil {
		s.respondAgentError(w, err)
		return
	}
	s.respond(w, http.StatusOK, activeResponse{ActiveSessionID: active})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	// Naming runs inside SendMessage; an aborted request must not leave the
	// message half applied.
	if err := s.agent.SendMessage(context.WithoutCancel(r.Context()), id, req.Text); err != nil {
		s.respondAgentError(w, err)
		return
	}
	s.respondSession(w, id, http.StatusAccepted)
}

// command adapts a status command to a handler answering with the updated
// session.
func (s *Server) command(fn func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(id); err != nil {
			s.respondAgentError(w, err)
			return
		}
		s.respondSession(w, id, http.StatusOK)
	}
}

// The confirmed action runs to completion even if the client goes away.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.agent.Confirm(context.WithoutCancel(r.Context()), id); err != nil {
		s.respondAgentError(w, err)
		return
	}
	s.respondSession(w, id, http.StatusOK)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.agent.Summarize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondAgentError(w, err)
		return
	}
	s.respond(w, http.StatusOK, summaryResponse{Summary: summary})
}

func (s *Server) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.agent.Session(id); err != nil {
		s.respondAgentError(w, err)
		return
	}
	view, ok := s.agent.Pending(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, agent.ErrNoPendingConfirmation.Error())
		return
	}
	s.respond(w, http.StatusOK, view)
}

func (s *Server) handleGetActive(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, activeResponse{ActiveSessionID: s.agent.ActiveID()})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeBody(r, &req); err != nil || req.ID == "" {
		s.respondError(w, http.StatusBadRequest, "Request body must be {\"id\": \"<session id>\"}.")
		return
	}
	if err := s.agent.Select(req.ID); err != nil {
		s.respondAgentError(w, err)
		return
	}
	s.respond(w, http.StatusOK, activeResponse{ActiveSessionID: req.ID})
}

func (s *Server) respondSession(w http.ResponseWriter, id string, status int) {
	sess, err := s.agent.Session(id)
	if err != nil {
		s.respondAgentError(w, err)
		return
	}
	s.respond(w, status, sess)
}

func decodeBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, out)
}

// statusFor maps controller errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, schemas.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrInvalidTransition),
		errors.Is(err, agent.ErrConfirmationPending),
		errors.Is(err, agent.ErrConfirmedActionRunning),
		errors.Is(err, agent.ErrNoPendingConfirmation),
		errors.Is(err, agent.ErrConfirmationResolved),
		errors.Is(err, agent.ErrTickInFlight):
		return http.StatusConflict
	case errors.Is(err, agent.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrControllerClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, schemas.ErrActionExecutionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondAgentError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed.", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, errorResponse{Error: message})
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
