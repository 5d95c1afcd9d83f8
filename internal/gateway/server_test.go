package gateway

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestServerRunAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.Enabled = true

	var seen atomic.Value
	gw, store := newTestGateway(t, cfg, echoDownstream(&seen))
	srv := NewServer(cfg, gw)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("Run: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	resp, err := http.Get("http://" + srv.FrontAddr().String() + "/hello")
	if err != nil {
		t.Fatalf("GET /hello: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + srv.AdminAddr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	if hits, _ := store.Get(context.Background(), "/hello"); hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerAdminDisabled(t *testing.T) {
	cfg := testConfig()
	var seen atomic.Value
	gw, _ := newTestGateway(t, cfg, echoDownstream(&seen))

	srv := NewServer(cfg, gw)
	if srv.adminServer != nil {
		t.Error("admin server should not be created when disabled")
	}
}

func TestServerReadyClosesWhenBindFails(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()

	cfg := testConfig()
	cfg.Listener.Address = taken.Addr().String()
	var seen atomic.Value
	gw, _ := newTestGateway(t, cfg, echoDownstream(&seen))
	srv := NewServer(cfg, gw)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(context.Background()) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("Ready not closed after bind failure")
	}
	if srv.BindErr() == nil {
		t.Error("expected BindErr after failed listen")
	}
	if srv.FrontAddr() != nil {
		t.Errorf("FrontAddr = %v, want nil", srv.FrontAddr())
	}
	if err := <-errCh; err == nil {
		t.Error("Run should return the listen error")
	}
}
