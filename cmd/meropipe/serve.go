package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/aecintel/meropipe/blob"
	"github.com/aecintel/meropipe/ingest"
	"github.com/aecintel/meropipe/observability"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			srv := &http.Server{
				Addr:              cfg.Listen,
				Handler:           router(a),
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      10 * time.Minute,
				IdleTimeout:       60 * time.Second,
			}

			go func() {
				slog.Info("server starting", "addr", cfg.Listen)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("server error", "error", err)
					os.Exit(1)
				}
			}()

			<-ctx.Done()
			slog.Info("shutting down")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown", "error", err)
			}
			slog.Info("server stopped")
			return nil
		},
	}
}

func router(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/ingest", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ref       string    `json:"ref"`
			EventTime time.Time `json:"event_time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Ref == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ref is required"})
			return
		}

		result, err := a.service.ProcessFile(r.Context(), req.Ref, req.EventTime)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, blob.ErrNotFound):
				status = http.StatusNotFound
			case errors.Is(err, ingest.ErrAllChunksFailed):
				status = http.StatusBadGateway
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Post("/replay", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prefix string `json:"prefix"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		summary, err := a.service.Replay(r.Context(), req.Prefix)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := a.events.Recent(r.Context(), r.URL.Query().Get("type"), 100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if events == nil {
			events = []*observability.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
