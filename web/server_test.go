package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/olsock/sockd/pkg/pipe"
)

func newTestHTTPServer(h Handler) *Server {
	return &Server{Handler: h, Logger: zap.NewNop()}
}

func post(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestInvokeSuccess(t *testing.T) {
	s := newTestHTTPServer(HandlerFunc(func(_ context.Context, evt Event) (any, error) {
		m, ok := evt.(map[string]any)
		require.True(t, ok)
		return map[string]any{"sum": m["a"].(float64) + m["b"].(float64)}, nil
	}))

	w := post(t, s, `{"a": 1, "b": 2}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"sum": 3}`, w.Body.String())
}

func TestEmptyBodyIsNilEvent(t *testing.T) {
	var got Event = "unset"
	s := newTestHTTPServer(HandlerFunc(func(_ context.Context, evt Event) (any, error) {
		got = evt
		return "ok", nil
	}))

	w := post(t, s, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, got)
}

func TestMalformedEventEchoesBody(t *testing.T) {
	s := newTestHTTPServer(HandlerFunc(func(context.Context, Event) (any, error) {
		t.Error("handler invoked with malformed event")
		return nil, nil
	}))

	const body = `{"a": not json`
	w := post(t, s, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, body, w.Body.String())
}

func TestHandlerErrorIsDiagnosed(t *testing.T) {
	s := newTestHTTPServer(HandlerFunc(func(context.Context, Event) (any, error) {
		return nil, errors.New("backend melted")
	}))

	w := post(t, s, `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "backend melted")
}

func TestHandlerPanicIsDiagnosed(t *testing.T) {
	s := newTestHTTPServer(HandlerFunc(func(context.Context, Event) (any, error) {
		panic("boom")
	}))

	w := post(t, s, `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
	// the diagnostic carries a stack, not just the panic value
	assert.Contains(t, w.Body.String(), "goroutine")
}

func TestMountedAppSeesRewrittenPath(t *testing.T) {
	var gotPath string
	s := newTestHTTPServer(HandlerFunc(func(context.Context, Event) (any, error) {
		t.Error("function handler invoked while an app is mounted")
		return nil, nil
	}))
	s.App = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/run/echo/a/b", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "/a/b", gotPath)
}

func TestAppPath(t *testing.T) {
	for in, want := range map[string]string{
		"/run/echo/a/b": "/a/b",
		"/run/echo/":    "/",
		"/run/echo":     "/",
		"/":             "/",
	} {
		assert.Equal(t, want, appPath(in), "path %q", in)
	}
}

func TestServeNotifiesReadiness(t *testing.T) {
	dir := t.TempDir()
	readyPath := filepath.Join(dir, "server_pipe")
	require.NoError(t, os.WriteFile(readyPath, nil, 0644))

	l, err := net.Listen("unix", filepath.Join(dir, "ol.sock"))
	require.NoError(t, err)

	s := newTestHTTPServer(HandlerFunc(func(context.Context, Event) (any, error) {
		return "ok", nil
	}))
	s.Ready = &pipe.Notifier{Path: readyPath}

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(l)
	}()

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(readyPath)
		return err == nil && string(b) == "ready"
	}, time.Second, 10*time.Millisecond)

	l.Close()
	<-done
}
