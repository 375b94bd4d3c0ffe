package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/couchcryptid/trace-alert-service/internal/dashboard"
	"github.com/couchcryptid/trace-alert-service/internal/domain"
)

const maxBodyBytes = 64 << 10

// Dashboard is the application surface the API drives.
type Dashboard interface {
	ReadinessChecker
	Snapshot() dashboard.State
	LocateDevice(ctx context.Context) (domain.Coordinate, error)
	LocateByName(ctx context.Context, query string) (domain.Coordinate, error)
	SignOut(ctx context.Context) error
	Refresh(ctx context.Context) error
	SetPreference(category string, enabled bool) error
	SelectAgent(name string) error
	TriggerSelected(ctx context.Context, action string) (domain.DispatchLogEntry, error)
	Share(ctx context.Context, alertID string) (domain.DispatchLogEntry, error)
}

type dashboardResponse struct {
	dashboard.State
	Agents []domain.AgentProfile `json:"agents"`
}

type coordinateResponse struct {
	Coordinate domain.Coordinate `json:"coordinate"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type preferenceRequest struct {
	Enabled *bool `json:"enabled"`
}

type agentRequest struct {
	Agent string `json:"agent"`
}

type dispatchRequest struct {
	Action string `json:"action"`
}

var errBadRequest = errors.New("invalid request body")

// statusClientClosedRequest reports a request the caller abandoned.
const statusClientClosedRequest = 499

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dashboardResponse{State: s.dashboard.Snapshot(), Agents: domain.Profiles()})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domain.Profiles())
}

func (s *Server) handleLocateDevice(w http.ResponseWriter, r *http.Request) {
	coord, err := s.dashboard.LocateDevice(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordinateResponse{Coordinate: coord})
}

func (s *Server) handleLocateByName(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	coord, err := s.dashboard.LocateByName(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordinateResponse{Coordinate: coord})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.SignOut(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Refresh(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.dashboard.Snapshot())
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Enabled == nil {
		s.writeError(w, errBadRequest)
		return
	}
	if err := s.dashboard.SetPreference(r.PathValue("category"), *req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": s.dashboard.Snapshot().Preferences})
}

func (s *Server) handleSelectAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.dashboard.SelectAgent(req.Agent); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected_agent": s.dashboard.Snapshot().SelectedAgent})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := s.dashboard.TriggerSelected(r.Context(), req.Action)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	entry, err := s.dashboard.Share(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

// writeError maps a domain error to a status and its user-facing message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := domain.UserMessage(err)
	switch {
	case errors.Is(err, errBadRequest):
		msg = errBadRequest.Error()
	case errors.Is(err, context.Canceled):
		msg = "Request cancelled."
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrEmptyAction),
		errors.Is(err, domain.ErrUnknownAgent),
		errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNoMatch), errors.Is(err, domain.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoLocation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCapabilityUnavailable), errors.Is(err, domain.ErrShareUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrServiceError), errors.Is(err, domain.ErrNetworkFailure):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidLocation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
