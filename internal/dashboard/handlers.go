package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/sergeknystautas/githistory/internal/api/contracts"
	"github.com/sergeknystautas/githistory/internal/history"
	"github.com/sergeknystautas/githistory/internal/version"
)

const clearSelectionPath = "clearSelection"

// handleHealthz returns a simple health check response.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, contracts.HealthResponse{Status: "ok", Version: version.Version})
}

// handleWorkspaces lists (GET) or registers (POST) workspaces.
func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list := s.cache.Workspaces()
		resp := contracts.WorkspacesResponse{Workspaces: make([]contracts.Workspace, 0, len(list))}
		for _, ws := range list {
			resp.Workspaces = append(resp.Workspaces, toContractWorkspace(ws))
		}
		writeJSON(w, http.StatusOK, resp)

	case http.MethodPost:
		var req contracts.RegisterWorkspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, history.InvalidArgumentf("invalid request body: %v", err))
			return
		}
		id, err := s.cache.RegisterWorkspace(req.Path)
		if err != nil {
			s.writeError(w, err)
			return
		}
		ws, err := s.cache.Workspace(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.logger.Info("workspace registered", "id", ws.ID, "path", ws.Path)
		if s.onRegister != nil {
			s.onRegister(ws)
		}
		writeJSON(w, http.StatusOK, toContractWorkspace(ws))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLog returns a page of the log listing. refresh=1 bypasses the cache.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	id, ok := s.requireWorkspace(w, r)
	if !ok {
		return
	}
	params, err := parseQueryParams(q)
	if err != nil {
		s.writeError(w, err)
		return
	}

	get := s.cache.GetLogEntries
	if refresh := q.Get(paramRefresh); refresh == "1" || refresh == "true" {
		get = s.cache.RefreshLogEntries
	}
	fut, err := get(id, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	page, err := fut.Await(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPage(page))
}

// handleLogSubpath dispatches /api/log/{hash} and /api/log/clearSelection.
func (s *Server) handleLogSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/log/")
	switch {
	case rest == clearSelectionPath:
		s.handleClearSelection(w, r)
	case rest == "" || strings.Contains(rest, "/"):
		http.NotFound(w, r)
	default:
		s.handleCommit(w, r, rest)
	}
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request, hash string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := s.requireWorkspace(w, r)
	if !ok {
		return
	}
	fut, err := s.cache.GetCommit(id, hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	commit, err := fut.Await(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractCommit(commit))
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := s.requireWorkspace(w, r)
	if !ok {
		return
	}
	if err := s.cache.ClearSelection(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBranches lists local and remote branches. Never cached.
func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := s.requireWorkspace(w, r)
	if !ok {
		return
	}
	fut, err := s.cache.GetBranches(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	branches, err := fut.Await(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractBranches(branches))
}

func (s *Server) requireWorkspace(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get(paramWorkspace)
	if id == "" {
		s.writeError(w, history.InvalidArgumentf("%s is required", paramWorkspace))
		return "", false
	}
	return id, true
}

// writeError maps an error code to an HTTP status and writes the error as
// JSON. Upstream failures take the status of the error they wrap.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, platformerrors.ToJSON(err))
}

func statusFor(err error) int {
	if history.IsUpstreamFailure(err) {
		if inner := errors.Unwrap(err); inner != nil && platformerrors.GetCode(inner) != platformerrors.CodeUnknown {
			return statusFor(inner)
		}
		return http.StatusBadGateway
	}
	switch platformerrors.GetCode(err) {
	case platformerrors.CodeNotFound:
		return http.StatusNotFound
	case platformerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case history.CodeInvalidState:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
