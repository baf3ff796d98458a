package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/simcast/internal/config"
	"github.com/nvandessel/simcast/internal/jobs"
	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/population"
)

// defaultAgentCount sizes the synthetic population when a run arrives
// with neither a persona file nor an explicit count.
const defaultAgentCount = 50

// statusPollInterval paces terminal-state polling for wait-mode runs.
const statusPollInterval = 25 * time.Millisecond

// registerTools registers all simcast MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simcast_run",
		Description: "Start a population simulation run and return its run ID",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simcast_status",
		Description: "Get the current status of a simulation run (queued, running, succeeded, failed, cancelled)",
	}, s.handleStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simcast_cancel",
		Description: "Cancel a queued or running simulation run",
	}, s.handleCancel)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simcast_outcome",
		Description: "Fetch the aggregated outcome of a completed run",
	}, s.handleOutcome)

	return nil
}

func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (*sdk.CallToolResult, RunOutput, error) {
	cfg := config.DefaultRunConfig()
	if args.ConfigPath != "" {
		loaded, err := config.LoadRunConfig(args.ConfigPath)
		if err != nil {
			return nil, RunOutput{}, err
		}
		cfg = loaded
	}
	if args.MaxTicks > 0 {
		cfg.MaxTicks = args.MaxTicks
	}
	if args.Seed > 0 {
		cfg.SeedConfig = models.SeedConfig{
			Strategy:    models.SeedFixed,
			PrimarySeed: uint32(args.Seed),
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, RunOutput{}, err
	}

	var personas []population.PersonaRecord
	if args.PersonaPath != "" {
		loaded, err := population.LoadPersonas(args.PersonaPath)
		if err != nil {
			return nil, RunOutput{}, err
		}
		personas = loaded
	} else {
		n := args.AgentCount
		if n <= 0 {
			n = defaultAgentCount
		}
		synthSeed := cfg.SeedConfig.PrimarySeed
		if synthSeed == 0 {
			synthSeed = 1
		}
		personas = population.Synthesize(n, synthSeed)
	}

	rc, err := s.pool.Submit(jobs.Submission{
		RunContext: models.RunContext{TenantID: args.TenantID},
		Config:     cfg,
		Personas:   personas,
	})
	if err != nil {
		return nil, RunOutput{}, err
	}
	s.logger.Info("run submitted", "run_id", rc.RunID, "agents", len(personas), "max_ticks", cfg.MaxTicks)

	if !args.Wait {
		return nil, RunOutput{
			RunID:   rc.RunID,
			JobID:   rc.JobID,
			Status:  string(models.StatusQueued),
			Message: fmt.Sprintf("run %s accepted with %d agents", rc.RunID, len(personas)),
		}, nil
	}

	st, err := s.awaitTerminal(ctx, rc.RunID)
	if err != nil {
		return nil, RunOutput{}, err
	}
	out := RunOutput{
		RunID:   rc.RunID,
		JobID:   rc.JobID,
		Status:  string(st.State),
		Message: fmt.Sprintf("run %s %s", rc.RunID, st.State),
	}
	if st.Result != nil {
		out.Error = st.Result.Error
		out.DurationMs = st.Result.DurationMs
	}
	return nil, out, nil
}

// awaitTerminal polls the pool until the run settles or ctx expires.
func (s *Server) awaitTerminal(ctx context.Context, runID string) (jobs.Status, error) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	for {
		st, err := s.pool.Status(runID)
		if err != nil {
			return jobs.Status{}, err
		}
		if st.State.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return jobs.Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusInput) (*sdk.CallToolResult, StatusOutput, error) {
	if args.RunID == "" {
		return nil, StatusOutput{}, fmt.Errorf("'run_id' parameter is required")
	}

	st, err := s.pool.Status(args.RunID)
	if err == nil {
		out := StatusOutput{
			RunID:  st.RunID,
			JobID:  st.JobID,
			Status: string(st.State),
		}
		if st.Result != nil {
			out.Error = st.Result.Error
			out.DurationMs = st.Result.DurationMs
			out.HasOutcome = st.Result.Result != nil
		}
		return nil, out, nil
	}
	if !errors.Is(err, models.ErrRunNotFound) {
		return nil, StatusOutput{}, err
	}

	// Not in this pool; the run may predate the server process.
	rec, err := s.store.GetRun(ctx, args.RunID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	out := StatusOutput{
		RunID:  rec.RunID,
		JobID:  rec.JobID,
		Status: string(rec.Status),
		Error:  rec.Error,
	}
	if rec.Status == models.StatusSucceeded {
		if _, oerr := s.store.GetOutcome(ctx, rec.RunID); oerr == nil {
			out.HasOutcome = true
		}
	}
	return nil, out, nil
}

func (s *Server) handleCancel(ctx context.Context, req *sdk.CallToolRequest, args CancelInput) (*sdk.CallToolResult, CancelOutput, error) {
	if args.RunID == "" {
		return nil, CancelOutput{}, fmt.Errorf("'run_id' parameter is required")
	}
	if err := s.pool.Cancel(args.RunID); err != nil {
		return nil, CancelOutput{}, err
	}
	s.logger.Info("run cancellation requested", "run_id", args.RunID)
	return nil, CancelOutput{
		RunID:   args.RunID,
		Message: fmt.Sprintf("cancellation requested for run %s", args.RunID),
	}, nil
}

func (s *Server) handleOutcome(ctx context.Context, req *sdk.CallToolRequest, args OutcomeInput) (*sdk.CallToolResult, OutcomeOutput, error) {
	if args.RunID == "" {
		return nil, OutcomeOutput{}, fmt.Errorf("'run_id' parameter is required")
	}

	outcome, err := s.store.GetOutcome(ctx, args.RunID)
	if err != nil {
		return nil, OutcomeOutput{}, err
	}

	metrics := make([]OutcomeMetric, 0, len(outcome.KeyMetrics))
	for _, m := range outcome.KeyMetrics {
		metrics = append(metrics, OutcomeMetric{Name: m.Name, Value: m.Value})
	}
	return nil, OutcomeOutput{
		RunID:               outcome.RunID,
		PrimaryOutcome:      outcome.PrimaryOutcome,
		OutcomeDistribution: outcome.OutcomeDistribution,
		ConfidenceLower:     outcome.ConfidenceInterval.Lower,
		ConfidenceUpper:     outcome.ConfidenceInterval.Upper,
		ConfidenceMethod:    outcome.ConfidenceInterval.Method,
		KeyMetrics:          metrics,
		StoppedEarly:        outcome.StoppedEarly,
	}, nil
}
