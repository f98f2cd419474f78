package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/transport"
	"github.com/redis/go-redis/v9"
)

const maxBodyBytes = 64 << 10

// Config configures the dev server.
type Config struct {
	// Secret signs credentials (HS256). At least 32 bytes.
	Secret []byte
	// TokenTTL bounds both the credential and its server-side session.
	TokenTTL    time.Duration
	Issuer      string
	RedisPrefix string
	Password    PasswordConfig
}

// DefaultConfig returns a config without a Secret.
func DefaultConfig() Config {
	return Config{
		TokenTTL:    time.Hour,
		Issuer:      "taskclient-devserver",
		RedisPrefix: "ts",
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        1,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

// Server is a stub task tracker upstream: it issues credentials, serves the
// profile endpoint, and guards a small task list. Revoke ends a user's
// sessions server-side so clients see their next request rejected.
type Server struct {
	cfg    Config
	store  *store
	tokens *tokenManager
	hasher *hasher
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config, rdb redis.UniversalClient, logger *slog.Logger) (*Server, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	tokens, err := newTokenManager(cfg.Secret, cfg.TokenTTL, cfg.Issuer)
	if err != nil {
		return nil, err
	}
	h, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		cfg:    cfg,
		store:  newStore(rdb, cfg.RedisPrefix),
		tokens: tokens,
		hasher: h,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Handler returns the upstream's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/profile", s.requireSession(s.handleProfile))
	mux.HandleFunc("GET /tasks", s.requireSession(s.handleListTasks))
	mux.HandleFunc("POST /tasks", s.requireSession(s.handleCreateTask))
	return s.logRequests(mux)
}

// Revoke deletes every server-side session of userID and returns how many
// were live. Credentials already handed out stop being honored at once.
func (s *Server) Revoke(ctx context.Context, userID string) (int, error) {
	n, err := s.store.deleteAllSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "sessions revoked", slog.String("user_id", userID), slog.Int("count", n))
	return n, nil
}

/*
====================================
AUTH HANDLERS
====================================
*/

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" || !strings.Contains(in.Email, "@") {
		writeError(w, http.StatusBadRequest, "name and a valid email are required")
		return
	}

	hash, err := s.hasher.hash(in.Password)
	if err != nil {
		if errors.Is(err, errPasswordTooShort) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, r, err)
		return
	}

	rec := &userRecord{
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.createUser(r.Context(), rec); err != nil {
		if errors.Is(err, errEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.internalError(w, r, err)
		return
	}

	s.issue(w, r, http.StatusCreated, rec)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	rec, err := s.store.userByEmail(r.Context(), in.Email)
	if err != nil && !errors.Is(err, errUserNotFound) {
		s.internalError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	ok, err := s.hasher.verify(in.Password, rec.PasswordHash)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	s.issue(w, r, http.StatusOK, rec)
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, status int, rec *userRecord) {
	sid, err := s.store.createSession(r.Context(), rec.ID, s.cfg.TokenTTL)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	token, err := s.tokens.issue(rec.ID, sid, s.now())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, status, api.AuthResponse{Token: token, User: publicUser(rec)})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, rec *userRecord) {
	writeJSON(w, http.StatusOK, publicUser(rec))
}

/*
====================================
TASK HANDLERS
====================================
*/

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, rec *userRecord) {
	tasks, err := s.store.listTasks(r.Context(), rec.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, rec *userRecord) {
	var in struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	task, err := s.store.addTask(r.Context(), rec.ID, strings.TrimSpace(in.Title), s.now())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

/*
====================================
PLUMBING
====================================
*/

type sessionHandler func(w http.ResponseWriter, r *http.Request, rec *userRecord)

// requireSession answers 401 unless the bearer credential verifies and its
// server-side session is still live.
func (s *Server) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := transport.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing credential")
			return
		}
		claims, err := s.tokens.parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credential")
			return
		}

		uid, live, err := s.store.sessionOwner(r.Context(), claims.SID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if !live || uid != claims.UID {
			writeError(w, http.StatusUnauthorized, "session revoked")
			return
		}

		rec, err := s.store.userByID(r.Context(), uid)
		if errors.Is(err, errUserNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		if err != nil {
			s.internalError(w, r, err)
			return
		}

		next(w, r, rec)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.DebugContext(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.String("request_id", r.Header.Get(transport.RequestIDHeader)),
			slog.Duration("duration", s.now().Sub(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func publicUser(rec *userRecord) api.User {
	return api.User{
		ID:        rec.ID,
		Name:      rec.Name,
		Email:     rec.Email,
		CreatedAt: rec.CreatedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
