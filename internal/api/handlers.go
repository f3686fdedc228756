package api

import (
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/smartspec/smartspec/internal/orchestrator"
	"github.com/smartspec/smartspec/pkg/apperr"
	"github.com/smartspec/smartspec/pkg/engine"
	"github.com/smartspec/smartspec/web"
)

// version is set via -ldflags at build time.
var version = "dev"

// SetVersion sets the version string (called from main).
func SetVersion(v string) {
	version = v
}

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response for /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ExecuteRequest is the body of POST /workflows/{name}/execute.
type ExecuteRequest struct {
	Args         map[string]any `json:"args"`
	Apply        bool           `json:"apply"`
	AllowNetwork bool           `json:"allow_network"`
}

// ExecuteResponse is the response for a started execution.
type ExecuteResponse struct {
	ExecutionID string `json:"execution_id"`
}

// RespondRequest is the body of POST /executions/{id}/respond.
type RespondRequest struct {
	InterruptID string                 `json:"interrupt_id"`
	Action      engine.InterruptAction `json:"action"`
	Payload     map[string]any         `json:"payload"`
}

// ResumeRequest is the body of POST /executions/{id}/resume.
type ResumeRequest struct {
	SpecID       string         `json:"spec_id"`
	Workflow     string         `json:"workflow"`
	CheckpointID string         `json:"checkpoint_id"`
	Args         map[string]any `json:"args"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "smartspec-service"})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	specID := chi.URLParam(r, "id")

	rec, err := s.orch.Recommend(category, specID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := s.orch.Execute(r.Context(), name, req.Args, orchestrator.Flags{
		Apply:        req.Apply,
		AllowNetwork: req.AllowNetwork,
	})
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ExecuteResponse{ExecutionID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, err := s.orch.Status(id)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleEvents streams an execution's events as newline-delimited JSON
// until the first terminal event or the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev := range s.orch.Events(r.Context(), id) {
		if err := enc.Encode(ev); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.Cancel(id); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.orch.Respond(req.InterruptID, req.Action, req.Payload); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := s.orch.Resume(r.Context(), req.SpecID, req.Workflow, req.CheckpointID, req.Args)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ExecuteResponse{ExecutionID: id})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.orch.Ask(r.Context(), req.Category, req.Text)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWebRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/web/", http.StatusFound)
}

// WebIndexData is the data for the dashboard's index page template.
type WebIndexData struct {
	Version string
}

func (s *Server) handleWebAssets(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/web")
	if path == "" || path == "/" {
		s.renderIndex(w, r)
		return
	}

	if strings.HasPrefix(path, "/static/") {
		s.serveStaticFile(w, r, path)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) serveStaticFile(w http.ResponseWriter, r *http.Request, path string) {
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch filepath.Ext(path) {
	case ".css":
		w.Header().Set("Content-Type", "text/css")
	case ".js":
		w.Header().Set("Content-Type", "application/javascript")
	case ".svg":
		w.Header().Set("Content-Type", "image/svg+xml")
	}

	fileName := strings.TrimPrefix(strings.TrimPrefix(path, "/"), "static/")
	data, err := fs.ReadFile(staticFS, fileName)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Write(data)
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(web.Templates, "templates/index.html")
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	if err := tmpl.Execute(w, WebIndexData{Version: version}); err != nil {
		http.Error(w, "template execution error: "+err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeAppErr maps the typed apperr taxonomy to HTTP status codes,
// falling back to 500 for anything untagged.
func writeAppErr(w http.ResponseWriter, err error) {
	code, ok := apperr.CodeOf(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeValidation:
		status = http.StatusBadRequest
	case apperr.CodeGovernance:
		status = http.StatusForbidden
	case apperr.CodeInsufficientFunds:
		status = http.StatusPaymentRequired
	case apperr.CodeBundleBusy:
		status = http.StatusConflict
	case apperr.CodeInterruptTimeout:
		status = http.StatusGatewayTimeout
	case apperr.CodeProvider, apperr.CodeStepFailed:
		status = http.StatusBadGateway
	case apperr.CodeIO, apperr.CodeInternal:
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Error())
}
