package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hotelhub/agency"
	"hotelhub/audit"
	"hotelhub/auth"
	"hotelhub/pricing"
	"hotelhub/upstream"
)

type ctxKey string

const ctxKeyCaller ctxKey = "caller"

type priceComputer interface {
	ComputePrice(ctx context.Context, pc pricing.Context) (pricing.Result, error)
}

type hotelSearcher interface {
	Search(ctx context.Context, req upstream.SearchRequest) ([]upstream.HotelOffer, error)
}

type eventRecorder interface {
	Record(e audit.Event) bool
}

type tokenVerifier interface {
	Verify(token string) (auth.Caller, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	pricer         priceComputer
	agencyService  *agency.Service
	hotels         hotelSearcher
	recorder       eventRecorder
	verifier       tokenVerifier
	db             pinger
	logger         *zap.Logger
	allowedOrigins []string
}

func (s *Server) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(s.authenticate)

		api.Get("/agencies", s.handleAgencies)
		api.Get("/agencies/{id}", s.handleAgency)

		api.Post("/prices/quote", s.handleQuote)
		api.Post("/prices/confirm", s.handleConfirm)

		api.Post("/hotels/search", s.handleHotelSearch)
	})

	return r
}

// requestLogger logs one line per request once the response is written.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log().Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)))
	})
}

// authenticate resolves the caller from an optional bearer token. Requests
// without one are anonymous customers; a bad token is rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := auth.Anonymous

		header := r.Header.Get("Authorization")
		if header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" || s.verifier == nil {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid authorization header"})
				return
			}
			c, err := s.verifier.Verify(token)
			if err != nil {
				s.log().Debug("rejected bearer token", zap.Error(err))
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
				return
			}
			caller = c
		}

		ctx := context.WithValue(r.Context(), ctxKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) auth.Caller {
	if c, ok := ctx.Value(ctxKeyCaller).(auth.Caller); ok {
		return c
	}
	return auth.Anonymous
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain and upstream failures onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authErr *upstream.AuthError
		apiErr  *upstream.APIError
		httpErr *upstream.HTTPError
	)

	switch {
	case errors.Is(err, agency.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "agency not found"})
	case errors.Is(err, agency.ErrNotApproved):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "agency is not approved"})
	case errors.As(err, &authErr):
		s.log().Error("upstream authentication failed", zap.Error(err), zap.String("path", r.URL.Path))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "upstream provider unavailable"})
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: apiErr.Message})
	case errors.As(err, &httpErr):
		s.log().Warn("upstream request failed", zap.Int("status", httpErr.Status), zap.String("path", r.URL.Path))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream provider error"})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "request timed out"})
	default:
		s.log().Error("request failed", zap.Error(err), zap.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
