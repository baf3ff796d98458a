package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/population"
)

// partition splits the sampled set into contiguous batches of at most size
// agents. Order within and across batches follows the sampled order.
func partition(agents []*models.Agent, size int) [][]*models.Agent {
	if size <= 0 || len(agents) == 0 {
		return nil
	}
	batches := make([][]*models.Agent, 0, (len(agents)+size-1)/size)
	for start := 0; start < len(agents); start += size {
		end := start + size
		if end > len(agents) {
			end = len(agents)
		}
		batches = append(batches, agents[start:end])
	}
	return batches
}

// batchOutcome collects one batch's pipeline results in batch order.
type batchOutcome struct {
	summaries []models.AgentTickSummary
	errors    []models.AgentStageError
}

// runBatch executes one batch sequentially on the calling goroutine. Stage
// errors are recorded and the batch continues; a fatal error aborts it.
// Agents that abstained contribute neither a summary nor an error.
func runBatch(ctx context.Context, p *population.Pipeline, batch []*models.Agent, in population.TickInput) (batchOutcome, error) {
	var out batchOutcome
	for _, a := range batch {
		summary, stageErr, fatal := p.RunAgent(ctx, a, in)
		if fatal != nil {
			return out, fatal
		}
		if stageErr != nil {
			out.errors = append(out.errors, *stageErr)
			continue
		}
		if summary.ActionType == "" {
			continue
		}
		out.summaries = append(out.summaries, summary)
	}
	return out, nil
}

// dispatch runs every batch and merges the results in batch order. With more
// than one worker the batches fan out on an errgroup; the merge is identical
// either way, so worker interleaving cannot change a run's outcome.
func dispatch(ctx context.Context, p *population.Pipeline, batches [][]*models.Agent, in population.TickInput, workers int) (batchOutcome, error) {
	var merged batchOutcome

	if workers <= 1 || len(batches) < 2 {
		for _, batch := range batches {
			out, err := runBatch(ctx, p, batch, in)
			if err != nil {
				return batchOutcome{}, err
			}
			merged.summaries = append(merged.summaries, out.summaries...)
			merged.errors = append(merged.errors, out.errors...)
		}
		return merged, nil
	}

	results := make([]batchOutcome, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, batch := range batches {
		g.Go(func() error {
			out, err := runBatch(gctx, p, batch, in)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batchOutcome{}, err
	}

	for _, out := range results {
		merged.summaries = append(merged.summaries, out.summaries...)
		merged.errors = append(merged.errors, out.errors...)
	}
	return merged, nil
}
