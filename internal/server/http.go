package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/stagegate/internal/gates"
)

// ActorHeader carries the user an evaluation is attributed to.
const ActorHeader = "X-Actor"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *GateServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	mux.HandleFunc("GET /v1/stages", s.handleListStages)
	mux.HandleFunc("POST /v1/stages", s.handleCreateStage)
	mux.HandleFunc("GET /v1/stages/{id}/gates", s.handleListStageGates)
	mux.HandleFunc("POST /v1/stages/{id}/gates", s.handleCreateGate)

	mux.HandleFunc("GET /v1/gates/{id}", s.handleGetGate)
	mux.HandleFunc("POST /v1/gates/{id}/deactivate", s.handleDeactivateGate)
	mux.HandleFunc("DELETE /v1/gates/{id}", s.handleDeleteGate)
	mux.HandleFunc("GET /v1/gates/{id}/requirements", s.handleListRequirements)
	mux.HandleFunc("POST /v1/gates/{id}/requirements", s.handleCreateRequirement)

	mux.HandleFunc("POST /v1/projects", s.handleCreateProject)
	mux.HandleFunc("GET /v1/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PATCH /v1/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("POST /v1/projects/{id}/records/{relation}", s.handleAddRecord)
	mux.HandleFunc("GET /v1/projects/{id}/gate-status", s.handleGateStatus)
	mux.HandleFunc("GET /v1/projects/{id}/blockers", s.handleBlockers)
	mux.HandleFunc("POST /v1/projects/{id}/gates/{gate_key}/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /v1/projects/{id}/evaluations", s.handleListEvaluations)

	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return AuthMiddleware(authToken, withActor(mux))
}

// withActor attaches the X-Actor header to the request context so that
// evaluations record who triggered them.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(ActorHeader); actor != "" {
			r = r.WithContext(gates.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth handles GET /v1/health.
func (s *GateServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return inputError("invalid JSON body: " + err.Error())
}

// queryBool parses a boolean query parameter. Absent means false.
func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, inputError("invalid " + name + " parameter")
	}
	return b, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps err to a status code and writes it.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, code, err.Error())
}
