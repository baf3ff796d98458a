package store

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/simcast/internal/models"
)

// TickSchema is the Arrow schema for exported tick series. Nested payloads
// (summaries, per-agent errors) stay in the trace; the columnar export
// carries the flat per-tick numbers analysis tools want.
var TickSchema = arrow.NewSchema([]arrow.Field{
	{Name: "tick", Type: arrow.PrimitiveTypes.Int64},
	{Name: "sampled_count", Type: arrow.PrimitiveTypes.Int64},
	{Name: "error_count", Type: arrow.PrimitiveTypes.Int64},
	{Name: "events_applied", Type: arrow.PrimitiveTypes.Int64},
	{Name: "elapsed_ms", Type: arrow.PrimitiveTypes.Float64},
	{Name: "active_ratio", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteTicksArrow writes the trace's tick series as an Arrow IPC file.
func WriteTicksArrow(w io.WriteSeeker, trace *models.ExecutionTrace) error {
	if trace == nil {
		return fmt.Errorf("trace is required")
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, TickSchema)
	defer builder.Release()

	for _, td := range trace.TickData {
		builder.Field(0).(*array.Int64Builder).Append(int64(td.Tick))
		builder.Field(1).(*array.Int64Builder).Append(int64(td.SampledCount))
		builder.Field(2).(*array.Int64Builder).Append(int64(len(td.Errors)))
		builder.Field(3).(*array.Int64Builder).Append(int64(len(td.EventsApplied)))
		builder.Field(4).(*array.Float64Builder).Append(td.ElapsedMs)
		builder.Field(5).(*array.Float64Builder).Append(td.Metrics["active_ratio"])
	}

	rec := builder.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(TickSchema), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return fmt.Errorf("create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	return fw.Close()
}

// ReadTicksArrow reads an Arrow IPC file produced by WriteTicksArrow back
// into tick rows. Only the flat numeric columns survive the round trip.
func ReadTicksArrow(r ipc.ReadAtSeeker) ([]models.TickResult, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("open arrow file: %w", err)
	}
	defer fr.Close()

	var out []models.TickResult
	for {
		rec, err := fr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read arrow record: %w", err)
		}

		ticks := rec.Column(0).(*array.Int64)
		sampled := rec.Column(1).(*array.Int64)
		elapsed := rec.Column(4).(*array.Float64)
		active := rec.Column(5).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			out = append(out, models.TickResult{
				Tick:         int(ticks.Value(i)),
				SampledCount: int(sampled.Value(i)),
				ElapsedMs:    elapsed.Value(i),
				Metrics:      map[string]float64{"active_ratio": active.Value(i)},
			})
		}
	}
	return out, nil
}
