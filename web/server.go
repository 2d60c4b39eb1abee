package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/olsock/sockd/pkg/pipe"
)

// Server serves handler invocations over HTTP. Every request body is decoded
// as JSON into the event; the handler result is encoded back as JSON.
type Server struct {
	// Handler receives the decoded events
	Handler Handler

	// App, when set, takes over dispatch entirely: requests are forwarded
	// to the mounted application with the /run/<name> prefix stripped
	// from the path, so the application sees paths relative to its own
	// root
	App http.Handler

	// Ready, when set, is notified once right before the accept loop
	// starts. The listener is bound by then, so a caller unblocked by the
	// notification may connect immediately.
	Ready *pipe.Notifier

	Logger *zap.Logger
}

// Serve answers invocations on l until the listener fails
func (s *Server) Serve(l net.Listener) error {
	if s.Ready != nil {
		if err := s.Ready.Notify(); err != nil {
			s.Logger.Warn("readiness notify failed", zap.Error(err))
		}
	}
	srv := &http.Server{Handler: s}
	if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: serve: %w", err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if p := recover(); p != nil {
			// the caller gets a real diagnostic, never an empty 500
			rec.status = http.StatusInternalServerError
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "handler panic: %v\n\n%s", p, debug.Stack())
			s.Logger.Error("handler panicked",
				zap.String("req", id),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
		}
		s.Logger.Info("request",
			zap.String("req", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	}()

	if s.App != nil {
		mounted := r.Clone(r.Context())
		mounted.URL.Path = appPath(r.URL.Path)
		mounted.URL.RawPath = ""
		s.App.ServeHTTP(rec, mounted)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		rec.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(rec, "read request body: %v", err)
		return
	}

	var evt Event
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &evt); err != nil {
			// echo the rejected body so the caller sees what arrived
			s.Logger.Warn("undecodable event", zap.String("req", id), zap.Error(err))
			rec.WriteHeader(http.StatusBadRequest)
			rec.Write(body)
			return
		}
	}

	result, err := s.Handler.Invoke(r.Context(), evt)
	if err != nil {
		s.Logger.Warn("handler failed", zap.String("req", id), zap.Error(err))
		rec.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(rec, "handler error: %v", err)
		return
	}

	rec.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rec).Encode(result); err != nil {
		s.Logger.Error("encode result failed", zap.String("req", id), zap.Error(err))
	}
}

// appPath strips the /run/<name> mount prefix: /run/echo/a/b becomes /a/b.
// Shorter paths collapse to the application root.
func appPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 4 {
		return "/"
	}
	return "/" + strings.Join(parts[3:], "/")
}

// statusRecorder remembers the written status for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
