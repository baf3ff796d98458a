// Package mcp provides an MCP (Model Context Protocol) server for simcast.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/simcast/internal/engine"
	"github.com/nvandessel/simcast/internal/jobs"
	"github.com/nvandessel/simcast/internal/store"
)

// shutdownTimeout bounds how long Close waits for in-flight runs.
const shutdownTimeout = 10 * time.Second

// Server wraps the MCP SDK server and exposes run control tools.
type Server struct {
	server *sdk.Server
	store  store.Store
	pool   *jobs.Pool
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Config carries everything NewServer needs.
type Config struct {
	Name          string // server name (e.g. "simcast")
	Version       string // server version
	DataDir       string // directory holding simcast.db
	Workers       int    // concurrent runs (default 1)
	QueueCapacity int    // pending submissions (default 16)
	Logger        *slog.Logger
}

// NewServer creates an MCP server backed by a SQLite store and a run pool.
func NewServer(cfg *Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	st, err := store.NewSQLiteStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	runner := engine.NewRunner(engine.Options{
		Nodes:     st,
		Telemetry: st,
		Logger:    logger,
	})
	pool := jobs.NewPool(runner, jobs.Options{
		Workers:       cfg.Workers,
		QueueCapacity: cfg.QueueCapacity,
		Logger:        logger,
	})

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server: mcpServer,
		store:  st,
		pool:   pool,
		logger: logger,
	}

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	return s, nil
}

// Run serves MCP over stdio until the client disconnects, the context
// is cancelled or a shutdown signal arrives.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer stopSignals(sigChan)

	go func() {
		<-sigChan
		cancel()
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close drains the run pool and releases the store. Safe to call more
// than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.pool.Shutdown(ctx); err != nil {
			s.closeErr = fmt.Errorf("pool shutdown: %w", err)
		}
		if err := s.store.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
