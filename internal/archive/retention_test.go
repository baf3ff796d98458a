package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func infoFixture(names ...string) []ArchiveInfo {
	now := time.Now()
	out := make([]ArchiveInfo, len(names))
	for i, name := range names {
		// Newest first, one hour apart, 100 bytes each.
		out[i] = ArchiveInfo{
			Path:      "/archives/" + name,
			Size:      100,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func paths(archives []ArchiveInfo) []string {
	out := make([]string, len(archives))
	for i, a := range archives {
		out[i] = a.Path
	}
	return out
}

func TestCountPolicy(t *testing.T) {
	tests := []struct {
		name     string
		maxCount int
		input    []ArchiveInfo
		wantLen  int
	}{
		{"under limit", 5, infoFixture("a", "b"), 2},
		{"at limit", 2, infoFixture("a", "b"), 2},
		{"over limit", 2, infoFixture("a", "b", "c", "d"), 2},
		{"zero keeps nothing", 0, infoFixture("a"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &CountPolicy{MaxCount: tt.maxCount}
			got := p.Apply(tt.input)
			if len(got) != tt.wantLen {
				t.Errorf("kept %d, want %d (%v)", len(got), tt.wantLen, paths(got))
			}
			// The newest entries survive.
			for i := range got {
				if got[i].Path != tt.input[i].Path {
					t.Errorf("kept[%d] = %q, want %q", i, got[i].Path, tt.input[i].Path)
				}
			}
		})
	}
}

func TestAgePolicy(t *testing.T) {
	now := time.Now()
	input := []ArchiveInfo{
		{Path: "/a/new.archive", CreatedAt: now.Add(-1 * time.Hour)},
		{Path: "/a/old.archive", CreatedAt: now.Add(-48 * time.Hour)},
	}

	p := &AgePolicy{MaxAge: 24 * time.Hour}
	got := p.Apply(input)
	if len(got) != 1 {
		t.Fatalf("kept %d, want 1 (%v)", len(got), paths(got))
	}
	if got[0].Path != "/a/new.archive" {
		t.Errorf("kept %q, want the newer archive", got[0].Path)
	}
}

func TestSizePolicy(t *testing.T) {
	input := infoFixture("a", "b", "c") // 100 bytes each

	tests := []struct {
		name     string
		maxBytes int64
		wantLen  int
	}{
		{"all fit", 1000, 3},
		{"two fit", 250, 2},
		{"one fits", 100, 1},
		{"newest always kept", 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &SizePolicy{MaxTotalBytes: tt.maxBytes}
			got := p.Apply(input)
			if len(got) != tt.wantLen {
				t.Errorf("kept %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestCompositePolicyUnion(t *testing.T) {
	now := time.Now()
	input := []ArchiveInfo{
		{Path: "/a/1.archive", Size: 100, CreatedAt: now.Add(-1 * time.Hour)},
		{Path: "/a/2.archive", Size: 100, CreatedAt: now.Add(-30 * time.Hour)},
		{Path: "/a/3.archive", Size: 100, CreatedAt: now.Add(-60 * time.Hour)},
	}

	// Count keeps the first; age keeps anything under 40h, so the union is
	// the first two.
	p := &CompositePolicy{Policies: []RetentionPolicy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 40 * time.Hour},
	}}
	got := p.Apply(input)
	if len(got) != 2 {
		t.Fatalf("kept %d, want 2 (%v)", len(got), paths(got))
	}
	if got[0].Path != "/a/1.archive" || got[1].Path != "/a/2.archive" {
		t.Errorf("kept %v, want the two newest", paths(got))
	}
}

func TestListFindsArchives(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"simcast-20260301-100000.archive", "simcast-20260302-100000.archive"} {
		if err := Write(filepath.Join(dir, name), sampleSnapshot()); err != nil {
			t.Fatalf("Write(%s) error = %v", name, err)
		}
	}
	// Files that do not match the naming scheme are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := List(dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("found %d archives, want 2 (%v)", len(got), paths(got))
	}
	if filepath.Base(got[0].Path) != "simcast-20260302-100000.archive" {
		t.Errorf("first = %q, want the newest by name", got[0].Path)
	}
	// CreatedAt comes from the header, not the filesystem.
	want := sampleSnapshot().CreatedAt
	if !got[0].CreatedAt.Equal(want) {
		t.Errorf("created_at = %v, want %v", got[0].CreatedAt, want)
	}
}

func TestListMissingDir(t *testing.T) {
	got, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got != nil {
		t.Errorf("List() = %v, want nil", got)
	}
}

func TestApplyRetentionDeletes(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"simcast-20260301-100000.archive",
		"simcast-20260302-100000.archive",
		"simcast-20260303-100000.archive",
	}
	for _, name := range names {
		if err := Write(filepath.Join(dir, name), sampleSnapshot()); err != nil {
			t.Fatalf("Write(%s) error = %v", name, err)
		}
	}

	deleted, err := ApplyRetention(dir, &CountPolicy{MaxCount: 2})
	if err != nil {
		t.Fatalf("ApplyRetention() error = %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("deleted %d, want 1 (%v)", len(deleted), deleted)
	}
	if filepath.Base(deleted[0]) != names[0] {
		t.Errorf("deleted %q, want the oldest %q", deleted[0], names[0])
	}

	remaining, err := List(dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("%d archives remain, want 2", len(remaining))
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"720h", 720 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"", 0, true},
		{"d", 0, true},
		{"abc", 0, true},
		{"5y", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"500KB", 500 << 10, false},
		{"100MB", 100 << 20, false},
		{"1GB", 1 << 30, false},
		{"42B", 42, false},
		{"1024", 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-5MB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
