package fakegateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	RouteLogin    = "/api/v1/auth/login"
	RouteRegister = "/api/v1/auth/register"
	RouteRefresh  = "/api/v1/auth/refresh"
	RouteLogout   = "/api/v1/auth/logout"
	RouteWorkouts = "/api/v1/workouts"
	RouteProfile  = "/api/v1/profile"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes a Backend over the same HTTP routes as the real service.
type Server struct {
	backend *Backend
	mux     *http.ServeMux
}

// NewServer exposes backend over the API routes.
func NewServer(backend *Backend) *Server {
	s := &Server{backend: backend, mux: http.NewServeMux()}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	mw := []func(http.HandlerFunc) http.HandlerFunc{s.LoggingMiddleware, s.RecoverMiddleware}

	s.mux.HandleFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), mw...))
	s.mux.HandleFunc("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), mw...))
	s.mux.HandleFunc("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), mw...))
	s.mux.HandleFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), mw...))
	s.mux.HandleFunc("POST "+RouteWorkouts, ChainMiddleware(s.CreateWorkoutHandler(), mw...))
	s.mux.HandleFunc("GET "+RouteWorkouts, ChainMiddleware(s.ListWorkoutsHandler(), mw...))
	s.mux.HandleFunc("GET "+RouteProfile, ChainMiddleware(s.ProfileHandler(), mw...))
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.NewStatusError(http.StatusBadRequest, err.Error()))
			return
		}
		resp, err := s.backend.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.NewStatusError(http.StatusBadRequest, err.Error()))
			return
		}
		resp, err := s.backend.Register(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.NewStatusError(http.StatusBadRequest, err.Error()))
			return
		}
		resp, err := s.backend.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.NewStatusError(http.StatusBadRequest, err.Error()))
			return
		}
		if err := s.backend.Logout(r.Context(), req.RefreshToken); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) CreateWorkoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, apperrors.NewStatusError(http.StatusBadRequest, err.Error()))
			return
		}
		record, err := s.backend.CreateWorkout(r.Context(), bearerToken(r), payload)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
	}
}

func (s *Server) ListWorkoutsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.backend.ListWorkouts(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.backend.Profile(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// ChainMiddleware wraps routeFunction so the first middleware runs outermost.
func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("fake backend request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("recovered from panic")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps backend errors to responses. Statusless scripted failures become 503.
func writeError(w http.ResponseWriter, err error) {
	var statusErr *apperrors.StatusError
	if errors.As(err, &statusErr) {
		writeJSON(w, statusErr.Status, errorResponse{Error: statusErr.Message})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
}
