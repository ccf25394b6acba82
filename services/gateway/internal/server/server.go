package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"docchat/internal/util"
	"docchat/services/gateway/internal/ragclient"
)

// Config wires the HTTP server to the upstream rag client.
type Config struct {
	Rag            *ragclient.Client
	MaxUploadBytes int64
	TrustedProxies *util.TrustedProxies
}

// Server exposes the browser-facing API and relays it to the rag service.
type Server struct {
	rag            *ragclient.Client
	mux            *http.ServeMux
	maxUploadBytes int64
	trustedProxies *util.TrustedProxies
}

// New constructs the gateway HTTP server.
func New(cfg Config) (*Server, error) {
	if cfg.Rag == nil {
		return nil, errors.New("server: rag client is required")
	}
	s := &Server{
		rag:            cfg.Rag,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		trustedProxies: cfg.TrustedProxies,
	}
	s.routes()
	return s, nil
}

// Router returns the handler with the shared middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("gateway", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/create", s.handleCreate)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/projects/", s.handleProjects)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required (field: files)")
		return
	}
	uploads := make([]ragclient.Upload, 0, len(headers))
	for _, fh := range headers {
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
			writeError(w, http.StatusBadRequest, "only PDF files are supported")
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		defer f.Close()
		uploads = append(uploads, ragclient.Upload{Filename: fh.Filename, Reader: f})
	}

	created, err := s.rag.CreateProject(r.Context(), s.clientIP(r), ragclient.CreateProjectRequest{
		Name:        r.FormValue("project_name"),
		Description: r.FormValue("description"),
		Files:       uploads,
	})
	if err != nil {
		writeRagError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

type chatRequest struct {
	UserHash  string `json:"user_hash"`
	ProjectID string `json:"project_id"`
	Query     string `json:"query"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserHash = strings.TrimSpace(req.UserHash)
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.Query = strings.TrimSpace(req.Query)
	if req.UserHash == "" || req.ProjectID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "user_hash, project_id and query are required")
		return
	}

	ans, err := s.rag.Chat(r.Context(), s.clientIP(r), req.UserHash, req.ProjectID, req.Query)
	if err != nil {
		writeRagError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/projects/"), "/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "user_hash and project_id are required")
		return
	}

	info, err := s.rag.ProjectInfo(r.Context(), s.clientIP(r), parts[0], parts[1])
	if err != nil {
		writeRagError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func writeRagError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*ragclient.APIError); ok {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	slog.Error("rag relay failed", "err", err)
	writeError(w, http.StatusInternalServerError, "rag service unavailable")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// normalizeMaxBytes keeps room for three 15MB files plus form overhead.
func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 48 * 1024 * 1024
	}
	return value
}
