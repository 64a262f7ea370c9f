// Package webhook exposes an HTTP endpoint that accepts raw RFC 5322
// messages and hands them to the same Handler as the SMTP ingress.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shineum/smtp-ntfy-bridge/internal/parser"
	"github.com/shineum/smtp-ntfy-bridge/internal/smtp"
)

const (
	headerEnvelopeFrom = "X-Envelope-From"
	headerEnvelopeTo   = "X-Envelope-To"

	defaultMaxBodySize = 10 * 1024 * 1024
	shutdownTimeout    = 30 * time.Second
	readHeaderTimeout  = 10 * time.Second
)

// Config holds the webhook server settings.
type Config struct {
	ListenAddr  string
	Handler     smtp.Handler
	MaxBodySize int64
}

// Server serves the webhook routes.
type Server struct {
	handler smtp.Handler
	maxSize int64
	httpSrv *http.Server
}

// New creates a webhook Server. A MaxBodySize of zero or less selects the
// 10 MB default.
func New(cfg Config) *Server {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}

	s := &Server{
		handler: cfg.Handler,
		maxSize: cfg.MaxBodySize,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Router returns the webhook routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/email", s.handleEmail).Methods(http.MethodPost)
	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	return router
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts requests on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("webhook server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down webhook server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			slog.Warn("webhook body exceeds size limit", "limit", s.maxSize)
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			return
		}
		slog.Error("error reading webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(raw) == 0 {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	msg := parser.ReadEmail(raw,
		r.Header.Get(headerEnvelopeFrom),
		r.Header.Get(headerEnvelopeTo),
	)
	slog.Debug("webhook message received",
		"from", msg.From,
		"to", msg.To,
		"size", len(raw),
	)

	s.handler.Handle(r.Context(), msg)
	w.WriteHeader(http.StatusAccepted)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}
