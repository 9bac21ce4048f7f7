package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter - builds the HTTP routes.
func NewRouter(logger *slog.Logger, matches matchUseCase) http.Handler {
	handler := &matchHandler{
		logger:  logger.With("component", "rest"),
		matches: matches,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ping", pingHandler)
	r.Get("/matches/{id}", handler.getMatch)

	return r
}

// Start - serves the HTTP routes until ctx is done.
func Start(ctx context.Context, logger *slog.Logger, port string, matches matchUseCase) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(logger, matches),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown http server", "error", err)
		}
	}()

	logger.Info("http server started", "port", port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
