package app

import (
	"context"
	"sync"
	"testing"

	"github.com/netfabric/fabsync/internal/config"
	"github.com/netfabric/fabsync/pkg/logging"
)

// TestApp_New verifies app initialization.
func TestApp_New(t *testing.T) {
	app, err := New("1.0.0", "abc123", "2024-01-01")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if app.Version() != "1.0.0" {
		t.Errorf("Version() = %s, want 1.0.0", app.Version())
	}
	if app.Commit() != "abc123" {
		t.Errorf("Commit() = %s, want abc123", app.Commit())
	}
	if app.Date() != "2024-01-01" {
		t.Errorf("Date() = %s, want 2024-01-01", app.Date())
	}
	if app.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if app.Config() == nil {
		t.Error("Config() returned nil")
	}
}

// TestApp_Client_Singleton verifies that Client() returns the same instance.
func TestApp_Client_Singleton(t *testing.T) {
	app := testApp(t)

	c1, err := app.Client()
	if err != nil {
		t.Fatalf("Client() failed: %v", err)
	}
	c2, err := app.Client()
	if err != nil {
		t.Fatalf("Client() failed on second call: %v", err)
	}

	if c1 != c2 {
		t.Error("Client() returned different instances")
	}
}

// TestApp_Client_Concurrent verifies thread-safe lazy initialization.
func TestApp_Client_Concurrent(t *testing.T) {
	app := testApp(t)

	var wg sync.WaitGroup
	clients := make([]any, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c, err := app.Client()
			if err != nil {
				t.Errorf("Client() failed: %v", err)
				return
			}
			clients[idx] = c
		}(i)
	}
	wg.Wait()

	for i := 1; i < 10; i++ {
		if clients[i] != clients[0] {
			t.Errorf("goroutine %d got a different client instance", i)
		}
	}
}

// TestApp_Shutdown verifies shutdown closes a created client and
// tolerates never having created one.
func TestApp_Shutdown(t *testing.T) {
	app := testApp(t)
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() with no client failed: %v", err)
	}

	if _, err := app.Client(); err != nil {
		t.Fatalf("Client() failed: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() with client failed: %v", err)
	}
}

// TestApp_SeededFabrics verifies declared fabrics reach the registry.
func TestApp_SeededFabrics(t *testing.T) {
	app := testApp(t)

	c, err := app.Client()
	if err != nil {
		t.Fatalf("Client() failed: %v", err)
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	fabric, err := c.Registry().GetFabric(context.Background(), "test-fab")
	if err != nil {
		t.Fatalf("GetFabric() failed: %v", err)
	}
	if fabric.RepoURL != "https://git.example.com/net/test.git" {
		t.Errorf("unexpected repo URL %s", fabric.RepoURL)
	}
}

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		DataDir: t.TempDir(),
		Fabrics: []config.FabricConfig{{
			ID:         "test-fab",
			RepoURL:    "https://git.example.com/net/test.git",
			ClusterURL: "https://cluster.example.com",
		}},
		LogLevel:  "error",
		LogFormat: "json",
	}
	app, err := New("dev", "none", "now", WithConfig(cfg), WithLogger(&logging.Nop))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return app
}
