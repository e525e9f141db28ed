package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookmuse/internal/app"
	"bookmuse/internal/ratelimit"
	"bookmuse/internal/util"
	"bookmuse/pkg/auth"
	"bookmuse/pkg/catalog"
	"bookmuse/pkg/domain"
	"bookmuse/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	Store             store.Store
	Sessions          store.SessionStore
	Catalog           *catalog.Client
	AuthLimiter       *ratelimit.FixedWindowLimiter
	TrustForwardedFor bool
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	store          store.Store
	sessions       store.SessionStore
	catalog        *catalog.Client
	authLimiter    *ratelimit.FixedWindowLimiter
	trustForwarded bool
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		store:          cfg.Store,
		sessions:       cfg.Sessions,
		catalog:        cfg.Catalog,
		authLimiter:    cfg.AuthLimiter,
		trustForwarded: cfg.TrustForwardedFor,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the ambient middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestLog(util.WithRequestID(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auth/register", s.withAuthLimit(s.handleRegister))
	s.mux.HandleFunc("/auth/login", s.withAuthLimit(s.handleLogin))
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.Handle("/me", s.withUser(s.handleMe))
	s.mux.Handle("/me/welcome", s.withUser(s.handleWelcome))
	s.mux.Handle("/books/search", s.withUser(s.handleBookSearch))
	s.mux.Handle("/recommendations", s.withUser(s.handleRecommendations))
	s.mux.Handle("/chat/messages", s.withUser(s.handleChatMessages))
	s.mux.Handle("/chat/usage", s.withUser(s.handleChatUsage))
	s.mux.Handle("/library", s.withUser(s.handleLibrary))
	s.mux.Handle("/library/", s.withUser(s.handleLibraryItem))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -- auth --

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) withAuthLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authLimiter != nil && !s.authLimiter.Allow(util.ClientIP(r, s.trustForwarded)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if _, exists, err := s.store.GetUserByEmail(email); err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	} else if exists {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveUser(user); err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	token, err := s.sessions.NewSession(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, ok, err := s.store.GetUserByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !ok || !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	token, err := s.sessions.NewSession(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session creation failed")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if token, ok := bearerToken(r); ok {
		_ = s.sessions.DeleteSession(token)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -- authenticated surface --

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, ok, err := s.sessions.GetUserIDByToken(token)
		if err != nil || !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok, err := s.store.GetUserByID(userID)
		if err != nil || !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"welcomeSeen": s.app.WelcomeSeen(user),
	})
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.app.MarkWelcomeSeen(user)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBookSearch(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit > 40 {
		limit = 40
	}
	opts := catalog.SearchOptions{
		YearFrom: queryInt(r, "yearFrom", 0),
		YearTo:   queryInt(r, "yearTo", 0),
		Sort:     strings.TrimSpace(r.URL.Query().Get("sort")),
	}
	books := s.catalog.SearchWithOptions(r.Context(), query, limit, opts)
	if books == nil {
		books = []domain.Book{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	books := s.app.Recommendations(r.Context(), user, query, queryInt(r, "limit", 10))
	if books == nil {
		books = []domain.Book{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

// -- chat --

type chatRequest struct {
	Content string `json:"content"`
}

type usagePayload struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleSendMessage(w, r, user)
	case http.MethodGet:
		messages := s.app.History(user)
		if messages == nil {
			messages = []domain.Message{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	turn, err := s.app.SendMessage(r.Context(), user, req.Content)
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userMessage":      turn.UserMessage,
		"assistantMessage": turn.AssistantMessage,
		"usage":            usagePayload{Used: turn.Used, Limit: turn.Limit, Remaining: turn.Limit - turn.Used},
	})
}

func writeChatError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrDailyLimitReached):
		status = http.StatusTooManyRequests
	case errors.Is(err, app.ErrTurnInFlight):
		status = http.StatusConflict
	case errors.Is(err, app.ErrUserRequired):
		status = http.StatusUnauthorized
	}
	writeError(w, status, err.Error())
}

func (s *Server) handleChatUsage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	used, limit := s.app.Usage(user)
	writeJSON(w, http.StatusOK, usagePayload{Used: used, Limit: limit, Remaining: limit - used})
}

// -- library --

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.Library(user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load library")
			return
		}
		if books == nil {
			books = []domain.Book{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"books": books})
	case http.MethodPost:
		var book domain.Book
		if err := decodeBody(r, &book); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.AddLibraryBook(user, book); err != nil {
			if errors.Is(err, app.ErrBookRequired) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to save book")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLibraryItem(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	bookID := strings.TrimPrefix(r.URL.Path, "/library/")
	if bookID == "" || strings.Contains(bookID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.app.RemoveLibraryBook(user, bookID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove book")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -- helpers --

func decodeBody(r *http.Request, out any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
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

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
