package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bookingsvc/internal/config"
	"bookingsvc/internal/domain"
	"bookingsvc/internal/models"
	"bookingsvc/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// HTTPServer exposes the booking operations as a REST API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     domain.BookingService
	server  *http.Server
	limiter *rateLimiter
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc domain.BookingService, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/bookings", srv.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/bookings/{id}", srv.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/bookings/{id}", srv.handleUpdate).Methods(http.MethodPut)
	router.HandleFunc("/bookings/{id}", srv.handleDelete).Methods(http.MethodDelete)
	router.HandleFunc("/bookings/{id}/cancel", srv.handleCancel).Methods(http.MethodPost)
	router.HandleFunc("/users/{id}/bookings", srv.handleListForUser).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	router.Use(srv.metricsMiddleware, srv.rateLimitMiddleware)

	handler := tracing.Middleware(srv.loggingMiddleware(router))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := models.DecodeBookingCreate(body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.svc.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleListForUser(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListForUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := models.DecodeBookingUpdate(body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.svc.Update(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		verr := &models.ValidationError{}
		verr.Add("body", "could not read request body")
		return nil, verr
	}
	return body, nil
}

// writeServiceError maps domain errors onto status codes. Anything unknown is a 500.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, models.ErrBookingNotFound) {
		writeError(w, http.StatusNotFound, "Booking not found")
		return
	}
	if verr, ok := models.AsValidation(err); ok {
		writeValidationError(w, verr)
		return
	}
	s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
