package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion is the current archive file version.
const FormatVersion = 1

// MaxPayloadBytes caps the decompressed payload size (256MB). Archives are
// read whole; the cap keeps a corrupt or hostile file from exhausting memory.
const MaxPayloadBytes = 256 * 1024 * 1024

// Header is the plain-text first line of an archive file. It describes the
// compressed payload that follows, so listings and verification can work
// without decompressing anything.
type Header struct {
	Version    int               `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	Checksum   string            `json:"checksum"`
	RunCount   int               `json:"run_count"`
	TickCount  int               `json:"tick_count"`
	Compressed bool              `json:"compressed"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func checksumOf(sum []byte) string {
	return "sha256:" + hex.EncodeToString(sum)
}

// Write writes a snapshot as an archive file: one JSON header line followed
// by the gzip-compressed JSON payload. The checksum covers the compressed
// bytes exactly as they appear on disk.
func Write(path string, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("flushing gzip stream: %w", err)
	}

	sum := sha256.Sum256(compressed.Bytes())
	headerBytes, err := json.Marshal(Header{
		Version:    FormatVersion,
		CreatedAt:  snap.CreatedAt,
		Checksum:   checksumOf(sum[:]),
		RunCount:   len(snap.Entries),
		TickCount:  snap.TickCount(),
		Compressed: true,
	})
	if err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}

	var out bytes.Buffer
	out.Grow(len(headerBytes) + 1 + compressed.Len())
	out.Write(headerBytes)
	out.WriteByte('\n')
	out.Write(compressed.Bytes())

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	if err := os.WriteFile(path, out.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	return nil
}

// Read loads an archive file, verifies the payload checksum and decodes the
// snapshot.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeaderLine(reader)
	if err != nil {
		return nil, err
	}

	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	sum := sha256.Sum256(compressed)
	if got := checksumOf(sum[:]); got != header.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, got)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("opening gzip payload: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxPayloadBytes {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxPayloadBytes)
	}

	var snap Snapshot
	if err := json.Unmarshal(decompressed, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// ReadHeader reads only the header line without touching the payload.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()
	return readHeaderLine(bufio.NewReader(f))
}

// Verify checks the payload checksum against the header without
// decompressing or decoding anything, and returns the header.
func Verify(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeaderLine(reader)
	if err != nil {
		return nil, err
	}

	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return nil, fmt.Errorf("hashing payload: %w", err)
	}
	if got := checksumOf(hasher.Sum(nil)); got != header.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, got)
	}
	return header, nil
}

func readHeaderLine(reader *bufio.Reader) (*Header, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version: %d", header.Version)
	}
	return &header, nil
}
