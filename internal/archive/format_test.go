package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/store"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Version:   FormatVersion,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Entries: []Entry{
			{
				Run: store.RunRecord{RunID: "run-1", Status: models.StatusSucceeded, Seed: 7},
				Trace: &models.ExecutionTrace{
					RunID:    "run-1",
					Seed:     7,
					TickData: []models.TickResult{{Tick: 1, SampledCount: 2}},
				},
			},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.archive")
	want := sampleSnapshot()

	if err := Write(path, want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.Version != FormatVersion {
		t.Errorf("version = %d, want %d", got.Version, FormatVersion)
	}
	if len(got.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(got.Entries))
	}
	if got.Entries[0].Run.RunID != "run-1" {
		t.Errorf("run_id = %q, want run-1", got.Entries[0].Run.RunID)
	}
	if got.Entries[0].Trace == nil || got.Entries[0].Trace.TicksExecuted() != 1 {
		t.Errorf("trace not round-tripped: %+v", got.Entries[0].Trace)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestWriteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "snap.archive")
	if err := Write(path, sampleSnapshot()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("archive not created: %v", err)
	}
}

func TestReadHeaderWithoutPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.archive")
	if err := Write(path, sampleSnapshot()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	header, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.Version != FormatVersion {
		t.Errorf("version = %d, want %d", header.Version, FormatVersion)
	}
	if header.RunCount != 1 {
		t.Errorf("run_count = %d, want 1", header.RunCount)
	}
	if header.TickCount != 1 {
		t.Errorf("tick_count = %d, want 1", header.TickCount)
	}
	if !header.Compressed {
		t.Error("compressed = false, want true")
	}
	if !strings.HasPrefix(header.Checksum, "sha256:") {
		t.Errorf("checksum = %q, want sha256: prefix", header.Checksum)
	}
}

func TestReadDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.archive")
	if err := Write(path, sampleSnapshot()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	// Flip a byte in the compressed payload, past the header line.
	headerEnd := strings.IndexByte(string(data), '\n')
	if headerEnd < 0 || headerEnd+10 >= len(data) {
		t.Fatalf("archive too small to corrupt: %d bytes", len(data))
	}
	data[headerEnd+10] ^= 0xFF
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Read(path); err == nil {
		t.Fatal("Read() succeeded on corrupted archive")
	} else if !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("error = %v, want checksum mismatch", err)
	}
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.archive")
	content := `{"version":99,"checksum":"sha256:abc"}` + "\npayload"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Read(path)
	if err == nil {
		t.Fatal("Read() succeeded on unknown version")
	}
	if !strings.Contains(err.Error(), "unsupported archive version") {
		t.Errorf("error = %v, want unsupported version message", err)
	}
}

func TestVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.archive")
	if err := Write(path, sampleSnapshot()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	header, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if header.RunCount != 1 {
		t.Errorf("run_count = %d, want 1", header.RunCount)
	}

	// Corrupt the payload and verify again.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Verify(path); err == nil {
		t.Fatal("Verify() succeeded on corrupted archive")
	} else if !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("error = %v, want checksum mismatch", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.archive"))
	if err == nil {
		t.Fatal("Read() succeeded on missing file")
	}
}

func TestReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.archive")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Read(path)
	if err == nil {
		t.Fatal("Read() succeeded on empty file")
	}
	if !strings.Contains(err.Error(), "reading header line") {
		t.Errorf("error = %v, want header read failure", err)
	}
}
