package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/internal/ratelimit"
	"docchat/internal/servicetoken"
	"docchat/internal/util"
	"docchat/services/rag/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Redis          *redis.Client
	TokenVerifier  *servicetoken.Verifier
	TrustedProxies *util.TrustedProxies

	CreateRateLimitPerMinute int
	ChatRateLimitPerMinute   int
	ProjectChatBudget        int
	MaxUploadBytes           int64
}

// Server exposes the RAG service HTTP endpoints.
type Server struct {
	app            *app.App
	tokenVerifier  *servicetoken.Verifier
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
	maxUploadBytes int64
	createLimiter  *ratelimit.FixedWindow
	chatLimiter    *ratelimit.FixedWindow
	chatBudget     *ratelimit.Budget
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	createLimit := cfg.CreateRateLimitPerMinute
	if createLimit <= 0 {
		createLimit = 5
	}
	chatLimit := cfg.ChatRateLimitPerMinute
	if chatLimit <= 0 {
		chatLimit = 20
	}
	budgetLimit := cfg.ProjectChatBudget
	if budgetLimit <= 0 {
		budgetLimit = 20
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindow, error) {
		prefix := "docchat:rag:ratelimit:" + name
		limiter, err := ratelimit.NewFixedWindow(cfg.Redis, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	createLimiter, err := newLimiter("create", createLimit)
	if err != nil {
		return nil, err
	}
	chatLimiter, err := newLimiter("chat", chatLimit)
	if err != nil {
		return nil, err
	}
	chatBudget, err := ratelimit.NewBudget(cfg.Redis, "docchat:rag:budget:chat", budgetLimit)
	if err != nil {
		return nil, fmt.Errorf("init chat budget: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		createLimiter:  createLimiter,
		chatLimiter:    chatLimiter,
		chatBudget:     chatBudget,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("rag", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/create", s.handleCreate)
	s.mux.HandleFunc("/chat", s.handleChat)
	s.mux.HandleFunc("/projects/", s.handleProjects)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRoot answers health on the bare root and 404s everything else
// that fell through the mux.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.handleHealth(w, r)
}

// authorize enforces the internal service token when a verifier is
// configured. Without one the service trusts its network.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.tokenVerifier == nil {
		return true
	}
	token, ok := servicetoken.BearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if _, err := s.tokenVerifier.Verify(token); err != nil {
		slog.Warn("service token rejected", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if !s.allowRate(w, r, s.createLimiter, "too many create requests") {
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "files field is required")
		return
	}
	uploads := make([]app.Upload, 0, len(files))
	for _, header := range files {
		data, err := readMultipartFile(header)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read uploaded file")
			return
		}
		uploads = append(uploads, app.Upload{
			Filename: header.Filename,
			Size:     header.Size,
			Data:     data,
		})
	}
	created, err := s.app.CreateProject(r.Context(), r.FormValue("project_name"), r.FormValue("description"), uploads)
	if err != nil {
		writeAppError(w, err)
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
	if !s.authorize(w, r) {
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many chat requests") {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserHash == "" || req.ProjectID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "user_hash, project_id and query are required")
		return
	}
	if _, err := s.app.Project(req.UserHash, req.ProjectID); err != nil {
		writeAppError(w, err)
		return
	}
	if !s.chatBudget.Spend(r.Context(), req.UserHash+"_"+req.ProjectID) {
		writeError(w, http.StatusTooManyRequests, "chat limit reached for this project")
		return
	}
	ans, err := s.app.Chat(r.Context(), req.UserHash, req.ProjectID, req.Query)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// /projects/{userHash} or /projects/{userHash}/{projectId}
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/projects/"), "/")
	parts := strings.SplitN(path, "/", 2)
	switch {
	case len(parts) == 1 && parts[0] != "":
		projects, err := s.app.ListProjects(parts[0])
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case len(parts) == 2 && parts[1] != "":
		info, err := s.app.ProjectInfo(parts[0], parts[1])
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindow, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(limiter.RetryAfter()/time.Second)))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
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

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, app.ErrInvalidUpload), errors.Is(err, app.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 48 * 1024 * 1024
	}
	return value
}
