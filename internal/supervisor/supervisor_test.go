package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/gkobilansky/variant-goat/internal/logging"
)

type fakeHTTPServer struct {
	listenErr error
	started   chan struct{}
	stopped   chan struct{}
	shutdowns atomic.Int32
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{started: make(chan struct{}, 1), stopped: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	select {
	case f.started <- struct{}{}:
	default:
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	if f.shutdowns.Add(1) == 1 {
		close(f.stopped)
	}
	return nil
}

var _ suture.Service = (*HTTPService)(nil)

func TestHTTPService_ShutsDownOnCancel(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPService(srv, ":0", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	if got := srv.shutdowns.Load(); got != 1 {
		t.Errorf("expected 1 shutdown, got %d", got)
	}
}

func TestHTTPService_ReturnsListenError(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.listenErr = errors.New("address in use")
	svc := NewHTTPService(srv, ":0", time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("expected wrapped listen error, got %v", err)
	}
}

func TestHTTPService_ClosedServerIsNotRestarted(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPService(srv, ":0", time.Second)

	done := make(chan error, 1)
	go func() { done <- svc.Serve(context.Background()) }()

	<-srv.started
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("expected suture.ErrDoNotRestart, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not return after the server closed")
	}
}

type countingService struct {
	runs atomic.Int32
}

func (c *countingService) Serve(ctx context.Context) error {
	c.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_RunsServicesUntilCanceled(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{ShutdownTimeout: time.Second})
	srv := newFakeHTTPServer()
	tree.AddAPIService(NewHTTPService(srv, ":0", time.Second))
	bg := &countingService{}
	tree.AddBackgroundService(bg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	<-srv.started
	deadline := time.Now().Add(2 * time.Second)
	for bg.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if bg.runs.Load() == 0 {
		t.Fatal("background service never started")
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
	if got := srv.shutdowns.Load(); got != 1 {
		t.Errorf("expected http server shut down once, got %d", got)
	}
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5 || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
