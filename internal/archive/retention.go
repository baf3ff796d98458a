package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ArchiveInfo is the per-file metadata retention policies decide on.
type ArchiveInfo struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// RetentionPolicy selects which archives survive a prune. Input is
// sorted newest-first and policies must preserve that order.
type RetentionPolicy interface {
	Apply(archives []ArchiveInfo) (keep []ArchiveInfo)
}

// CountPolicy keeps at most MaxCount archives.
type CountPolicy struct {
	MaxCount int
}

func (p *CountPolicy) Apply(archives []ArchiveInfo) []ArchiveInfo {
	n := max(0, min(p.MaxCount, len(archives)))
	return archives[:n]
}

// AgePolicy keeps archives created within MaxAge of now.
type AgePolicy struct {
	MaxAge time.Duration
}

func (p *AgePolicy) Apply(archives []ArchiveInfo) []ArchiveInfo {
	now := time.Now()
	var keep []ArchiveInfo
	for _, a := range archives {
		if now.Sub(a.CreatedAt) < p.MaxAge {
			keep = append(keep, a)
		}
	}
	return keep
}

// SizePolicy keeps the newest archives whose combined size stays under
// MaxTotalBytes. The newest archive survives even when it is over the
// limit by itself, so a prune can never delete everything.
type SizePolicy struct {
	MaxTotalBytes int64
}

func (p *SizePolicy) Apply(archives []ArchiveInfo) []ArchiveInfo {
	var used int64
	for i, a := range archives {
		used += a.Size
		if used > p.MaxTotalBytes && i > 0 {
			return archives[:i]
		}
	}
	return archives
}

// CompositePolicy keeps the union of what its sub-policies keep. An
// archive survives if any one policy wants it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

func (p *CompositePolicy) Apply(archives []ArchiveInfo) []ArchiveInfo {
	wanted := make(map[string]bool, len(archives))
	for _, sub := range p.Policies {
		for _, a := range sub.Apply(archives) {
			wanted[a.Path] = true
		}
	}

	var keep []ArchiveInfo
	for _, a := range archives {
		if wanted[a.Path] {
			keep = append(keep, a)
		}
	}
	return keep
}

func isArchiveName(name string) bool {
	return strings.HasPrefix(name, "simcast-") && filepath.Ext(name) == ".archive"
}

// List returns the simcast-*.archive files under dir, newest first.
// CreatedAt is read from the archive header when it parses and falls
// back to the file mtime. A missing dir is an empty list, not an error.
func List(dir string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []ArchiveInfo
	for _, e := range entries {
		if e.IsDir() || !isArchiveName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		ai := ArchiveInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if header, err := ReadHeader(ai.Path); err == nil {
			ai.CreatedAt = header.CreatedAt
		}
		archives = append(archives, ai)
	}

	// Names embed the creation timestamp, so descending name order is
	// newest-first.
	slices.SortFunc(archives, func(x, y ArchiveInfo) int {
		return strings.Compare(filepath.Base(y.Path), filepath.Base(x.Path))
	})
	return archives, nil
}

// ApplyRetention removes every archive in dir the policy does not keep
// and reports the deleted paths. It stops at the first failed delete.
func ApplyRetention(dir string, policy RetentionPolicy) ([]string, error) {
	archives, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(archives))
	for _, a := range policy.Apply(archives) {
		keep[a.Path] = true
	}

	var deleted []string
	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		deleted = append(deleted, a.Path)
	}
	return deleted, nil
}

// ParseDuration reads retention ages. It accepts everything
// time.ParseDuration does plus day ("30d") and week ("2w") suffixes.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var days int
	switch s[len(s)-1] {
	case 'd':
		days = 1
	case 'w':
		days = 7
	default:
		return 0, fmt.Errorf("unknown duration suffix in %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("non-numeric duration %q", s)
	}
	return time.Duration(n) * time.Duration(days) * 24 * time.Hour, nil
}

// ParseSize reads size limits like "500KB", "100MB", "1GB". A bare
// integer or a "B" suffix means bytes; multiples are binary.
func ParseSize(s string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return 0, fmt.Errorf("size is empty")
	}

	factor := int64(1)
	switch {
	case strings.HasSuffix(trimmed, "GB"):
		factor, trimmed = 1<<30, strings.TrimSuffix(trimmed, "GB")
	case strings.HasSuffix(trimmed, "MB"):
		factor, trimmed = 1<<20, strings.TrimSuffix(trimmed, "MB")
	case strings.HasSuffix(trimmed, "KB"):
		factor, trimmed = 1<<10, strings.TrimSuffix(trimmed, "KB")
	case strings.HasSuffix(trimmed, "B"):
		trimmed = strings.TrimSuffix(trimmed, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(trimmed), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size: %q", s)
	}
	return n * factor, nil
}
