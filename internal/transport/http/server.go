package http

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

/*
Package http exposes extraction and classification over a JSON API for editor plugins
and CI jobs.

	POST   /v1/extract          {"text": "..."}          matches only, no lookups
	POST   /v1/classify         {"domains": ["..."]}     domain -> result
	POST   /v1/inspect          {"text": "..."}          matches, results and findings
	PUT    /v1/documents/{id}   {"text": "..."}          inspect unless the text is unchanged
	DELETE /v1/documents/{id}                            forget a document fingerprint
	GET    /v1/cache                                     cache stats and entries
	DELETE /v1/cache                                     clear memory and durable cache
*/

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/x-stp/greenlink/internal/core"
	"github.com/x-stp/greenlink/internal/metrics"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 4 << 20

// Handler serves the API.
type Handler struct {
	inspector *core.Inspector
	tracker   *core.Tracker
}

// NewHandler returns a Handler over inspector.
func NewHandler(inspector *core.Inspector, tracker *core.Tracker) *Handler {
	if tracker == nil {
		tracker = core.NewTracker()
	}
	return &Handler{inspector: inspector, tracker: tracker}
}

// NewRouter wires the routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ready") })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", h.extract)
		r.Post("/classify", h.classify)
		r.Post("/inspect", h.inspect)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Put("/", h.putDocument)
			r.Delete("/", h.deleteDocument)
		})
		r.Get("/cache", h.getCache)
		r.Delete("/cache", h.clearCache)
	})
	return r
}

// RunHTTPServer serves handler on addr until ctx ends, then shuts down gracefully.
func RunHTTPServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Inspections wait on lookups, which carry their own timeout.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("http: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http: graceful shutdown error: %v", err)
		return err
	}
	log.Printf("http: server stopped")
	return nil
}
