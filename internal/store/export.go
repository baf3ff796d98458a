package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/simcast/internal/models"
)

// ExportTicksJSONL writes one JSON object per tick row. The format is
// line-oriented so partial reads of a long trace stay cheap.
func ExportTicksJSONL(w io.Writer, trace *models.ExecutionTrace) error {
	if trace == nil {
		return fmt.Errorf("trace is required")
	}
	enc := json.NewEncoder(w)
	for _, td := range trace.TickData {
		if err := enc.Encode(td); err != nil {
			return fmt.Errorf("encode tick %d: %w", td.Tick, err)
		}
	}
	return nil
}

// ImportTicksJSONL reads tick rows from a JSONL stream. Blank lines are
// skipped; a malformed line fails the import with its line number.
func ImportTicksJSONL(r io.Reader) ([]models.TickResult, error) {
	scanner := bufio.NewScanner(r)
	// Long ticks (many summaries) need room beyond the default buffer.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	var out []models.TickResult
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var td models.TickResult
		if err := json.Unmarshal(line, &td); err != nil {
			return nil, fmt.Errorf("parse line %d: %w", lineNum, err)
		}
		out = append(out, td)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ticks: %w", err)
	}
	return out, nil
}
