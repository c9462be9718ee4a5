// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/auditrun/internal/log"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve listen addr: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForListen(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("listen timeout")
}

func startManager(t *testing.T, mgr Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- mgr.Start(ctx)
	}()
	return cancel, errChan
}

func waitStart(t *testing.T, errChan <-chan error) error {
	t.Helper()
	select {
	case err := <-errChan:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
		return nil
	}
}

func TestNewManager_ValidDeps(t *testing.T) {
	deps := Deps{
		Logger:     log.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
	}

	mgr, err := NewManager(ServerConfig{ListenAddr: "127.0.0.1:0"}, deps)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if mgr == nil {
		t.Fatal("NewManager() returned nil manager")
	}
}

func TestNewManager_InvalidDeps(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		deps Deps
		want error
	}{
		{
			name: "missing logger",
			cfg:  ServerConfig{ListenAddr: "127.0.0.1:0"},
			deps: Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler()},
			want: ErrMissingLogger,
		},
		{
			name: "missing api handler",
			cfg:  ServerConfig{ListenAddr: "127.0.0.1:0"},
			deps: Deps{Logger: log.WithComponent("test")},
			want: ErrMissingAPIHandler,
		},
		{
			name: "missing listen addr",
			deps: Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()},
			want: ErrMissingListenAddr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.cfg, tt.deps)
			if !errors.Is(err, tt.want) {
				t.Fatalf("NewManager() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestManager_StartStop_OK(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mgr, err := NewManager(ServerConfig{
		ListenAddr:        addr,
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   2 * time.Second,
	}, Deps{Logger: log.WithComponent("test"), APIHandler: handler})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	cancel, errChan := startManager(t, mgr)
	defer cancel()

	if err := waitForListen(addr, 2*time.Second); err != nil {
		t.Fatalf("server did not start listening: %v", err)
	}
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := waitStart(t, errChan); err != nil {
		t.Errorf("Start() error = %v", err)
	}
}

func TestManager_StartTwice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{ListenAddr: addr, ShutdownTimeout: time.Second},
		Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	cancel, errChan := startManager(t, mgr)
	defer cancel()
	if err := waitForListen(addr, 2*time.Second); err != nil {
		t.Fatalf("server did not start listening: %v", err)
	}

	if err := mgr.Start(context.Background()); !errors.Is(err, ErrManagerStarted) {
		t.Fatalf("second Start() error = %v, want %v", err, ErrManagerStarted)
	}

	cancel()
	if err := waitStart(t, errChan); err != nil {
		t.Errorf("Start() error = %v", err)
	}
}

func TestManager_Shutdown_TimesOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	requestStarted := make(chan struct{})
	releaseHandler := make(chan struct{})
	var once sync.Once
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(requestStarted) })
		select {
		case <-r.Context().Done():
		case <-releaseHandler:
		}
	})

	addr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{
		ListenAddr:      addr,
		ShutdownTimeout: 100 * time.Millisecond,
	}, Deps{Logger: log.WithComponent("test"), APIHandler: handler})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	cancel, errChan := startManager(t, mgr)
	defer cancel()

	if err := waitForListen(addr, 2*time.Second); err != nil {
		t.Fatalf("server did not start listening: %v", err)
	}

	requestDone := make(chan struct{})
	go func() {
		defer close(requestDone)
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+addr, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil {
			_ = resp.Body.Close()
		}
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected in-flight request before shutdown")
	}

	cancel()
	err = waitStart(t, errChan)
	if err == nil {
		t.Fatal("expected shutdown timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected shutdown error: %v", err)
	}

	close(releaseHandler)

	select {
	case <-requestDone:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked request did not terminate after shutdown")
	}
}

func TestManager_DrainHooksEndStreamsBeforeServerStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// A handler that only returns once the drain hook fired, like an event
	// stream that ends when its session is torn down.
	drained := make(chan struct{})
	streaming := make(chan struct{})
	var once sync.Once
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() { close(streaming) })
		<-drained
		w.WriteHeader(http.StatusOK)
	})

	addr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{ListenAddr: addr, ShutdownTimeout: 2 * time.Second},
		Deps{Logger: log.WithComponent("test"), APIHandler: handler})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	mgr.RegisterDrainHook("sessions", func(ctx context.Context) error {
		close(drained)
		return record("sessions")(ctx)
	})
	mgr.RegisterShutdownHook("hub", record("hub"))
	mgr.RegisterShutdownHook("telemetry", record("telemetry"))

	cancel, errChan := startManager(t, mgr)
	defer cancel()
	if err := waitForListen(addr, 2*time.Second); err != nil {
		t.Fatalf("server did not start listening: %v", err)
	}

	respDone := make(chan int, 1)
	go func() {
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		resp, err := client.Get("http://" + addr)
		if err != nil {
			respDone <- 0
			return
		}
		_ = resp.Body.Close()
		respDone <- resp.StatusCode
	}()

	select {
	case <-streaming:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not start")
	}

	cancel()
	if err := waitStart(t, errChan); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if code := <-respDone; code != http.StatusOK {
		t.Fatalf("stream status = %d, want 200", code)
	}

	mu.Lock()
	defer mu.Unlock()
	want := "sessions,telemetry,hub"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("hook order = %s, want %s", got, want)
	}
}

func TestManager_HookErrorsAreJoined(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{ListenAddr: addr, ShutdownTimeout: time.Second},
		Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	errFlush := errors.New("flush failed")
	ran := false
	mgr.RegisterShutdownHook("first", func(context.Context) error {
		ran = true
		return nil
	})
	mgr.RegisterShutdownHook("second", func(context.Context) error { return errFlush })

	cancel, errChan := startManager(t, mgr)
	if err := waitForListen(addr, 2*time.Second); err != nil {
		cancel()
		t.Fatalf("server did not start listening: %v", err)
	}
	cancel()

	err = waitStart(t, errChan)
	if !errors.Is(err, errFlush) {
		t.Fatalf("Start() error = %v, want %v", err, errFlush)
	}
	if !strings.Contains(err.Error(), "hook second") {
		t.Fatalf("error %q does not name the failing hook", err)
	}
	if !ran {
		t.Fatal("remaining hooks must run after a failure")
	}
}

func TestManager_Shutdown_NotStarted(t *testing.T) {
	mgr, err := NewManager(ServerConfig{ListenAddr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	err = mgr.Shutdown(context.Background())
	if !errors.Is(err, ErrManagerNotStarted) {
		t.Errorf("Shutdown() error = %v, want %v", err, ErrManagerNotStarted)
	}
}

func TestManager_WithMetrics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	apiAddr := reserveListenAddr(t)
	metricsAddr := reserveListenAddr(t)
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("# HELP test_metric\n"))
	})

	mgr, err := NewManager(ServerConfig{
		ListenAddr:      apiAddr,
		MetricsAddr:     metricsAddr,
		ShutdownTimeout: 2 * time.Second,
	}, Deps{
		Logger:         log.WithComponent("test"),
		APIHandler:     http.NotFoundHandler(),
		MetricsHandler: metricsHandler,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	cancel, errChan := startManager(t, mgr)
	defer cancel()

	if err := waitForListen(metricsAddr, 2*time.Second); err != nil {
		t.Fatalf("metrics server did not start listening: %v", err)
	}
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + metricsAddr)
	if err != nil {
		t.Fatalf("GET metrics error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := waitStart(t, errChan); err != nil {
		t.Errorf("Start() error = %v", err)
	}
}

func TestManager_PropagatesListenErrors(t *testing.T) {
	testServer := httptest.NewServer(http.NotFoundHandler())
	defer testServer.Close()

	mgr, err := NewManager(ServerConfig{
		ListenAddr:      testServer.Listener.Addr().String(),
		ShutdownTimeout: time.Second,
	}, Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := mgr.Start(ctx); err == nil {
		t.Error("Start() expected error for port conflict, got nil")
	}
}
