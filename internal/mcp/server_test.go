package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(&Config{
		Name:          "simcast-test",
		Version:       "v0.0.1",
		DataDir:       t.TempDir(),
		Workers:       2,
		QueueCapacity: 8,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewServer(t *testing.T) {
	dataDir := t.TempDir()
	s, err := NewServer(&Config{
		Name:    "simcast-test",
		Version: "v0.0.1",
		DataDir: dataDir,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer s.Close()

	if s.server == nil {
		t.Error("Server.server is nil")
	}
	if s.store == nil {
		t.Error("Server.store is nil")
	}
	if s.pool == nil {
		t.Error("Server.pool is nil")
	}

	dbPath := filepath.Join(dataDir, "simcast.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database was not created at %s", dbPath)
	}
}

func TestClose(t *testing.T) {
	s, err := NewServer(&Config{
		Name:    "simcast-test",
		Version: "v0.0.1",
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Closing twice must not error or panic.
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	s, err := NewServer(&Config{
		Name:    "simcast-test",
		Version: "v0.0.1",
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Run must return promptly on a cancelled context. Only the no-hang
	// property matters; the stdio transport has nothing to talk to here.
	if err := s.Run(ctx); err == nil {
		t.Log("Run returned nil without a client")
	}
}
