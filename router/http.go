package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP paths served by Handler.
const (
	PathSSE        = "/sse"
	PathStreamable = "/mcp"
	PathMetrics    = "/metrics"
	PathHealth     = "/healthz"
)

// Handler returns the HTTP surface of the router.
func (r *Router) Handler() http.Handler {
	getServer := func(*http.Request) *mcp.Server { return r.server }

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(r.logRequests)

	mux.Handle(PathSSE, mcp.NewSSEHandler(getServer, nil))
	mux.Handle(PathStreamable, mcp.NewStreamableHTTPHandler(getServer, nil))
	mux.Handle(PathMetrics, promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	mux.Get(PathHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}

func (r *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		r.logger.Debug("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(req.Context()),
		)
	})
}

// ListenAndServe serves Handler on addr until ctx is cancelled, then shuts
// the server down gracefully.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return r.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (r *Router) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("serving MCP over HTTP", "addr", ln.Addr().String(), "sse", PathSSE, "streamable", PathStreamable)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Open SSE streams do not end on their own.
		r.logger.Warn("graceful shutdown incomplete, closing connections", "error", err)
		_ = srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
