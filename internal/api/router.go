// Package api serves the HTTP surfaces: the feedback service and health
// checks.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bruno-bot/internal/domain"
)

const requestTimeout = 2 * time.Minute

// FeedbackCorrector corrects messages and sends the results to the chat.
type FeedbackCorrector interface {
	Correct(ctx context.Context, req domain.FeedbackRequest) ([]domain.FeedbackItem, error)
}

type RouterDeps struct {
	// Feedback enables POST /feedback when set.
	Feedback FeedbackCorrector
	Logger   *slog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if deps.Feedback != nil {
		h := &feedbackHandler{svc: deps.Feedback, logger: logger}
		r.Post("/feedback", h.handle)
	}
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
