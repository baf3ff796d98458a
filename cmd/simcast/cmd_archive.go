package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/simcast/internal/archive"
	"github.com/nvandessel/simcast/internal/config"
	"github.com/nvandessel/simcast/internal/store"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export the run store to an archive file",
		Long: `Archive every run, outcome and trace to a compressed, checksummed file.

Default location: <data>/archives/simcast-YYYYMMDD-HHMMSS.archive
Old archives are pruned per the configured retention policy (default: last 10).

Examples:
  simcast archive                      # Archive to the default location
  simcast archive --out results.archive
  simcast archive list                 # List archives
  simcast archive verify <file>        # Verify archive integrity
  simcast archive restore <file>       # Import an archive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outPath, _ := cmd.Flags().GetString("out")

			appCfg, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = archive.GeneratePath(archive.DefaultDir(dataDir))
			}

			st, err := store.NewSQLiteStore(dataDir)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			snap, err := archive.Export(cmd.Context(), st, outPath)
			if err != nil {
				return fmt.Errorf("archive failed: %w", err)
			}

			policy := buildRetentionPolicy(appCfg.Archive.Retention)
			if _, err := archive.ApplyRetention(filepath.Dir(outPath), policy); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
			}

			if jsonOut {
				info, _ := os.Stat(outPath)
				var sizeBytes int64
				if info != nil {
					sizeBytes = info.Size()
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path":       outPath,
					"run_count":  len(snap.Entries),
					"tick_count": snap.TickCount(),
					"size_bytes": sizeBytes,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archive created: %d runs, %d ticks\n", len(snap.Entries), snap.TickCount())
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().String("out", "", "Output file path (default: auto-generated in <data>/archives/)")

	cmd.AddCommand(
		newArchiveListCmd(),
		newArchiveVerifyCmd(),
		newArchiveRestoreCmd(),
		newArchivePruneCmd(),
	)

	return cmd
}

// buildRetentionPolicy constructs a retention policy from config. Limits that
// fail to parse are skipped; with nothing configured the last 10 are kept.
func buildRetentionPolicy(rc config.RetentionConfig) archive.RetentionPolicy {
	var policies []archive.RetentionPolicy

	if rc.MaxCount > 0 {
		policies = append(policies, &archive.CountPolicy{MaxCount: rc.MaxCount})
	}
	if rc.MaxAge != "" {
		if d, err := archive.ParseDuration(rc.MaxAge); err == nil {
			policies = append(policies, &archive.AgePolicy{MaxAge: d})
		}
	}
	if rc.MaxTotalSize != "" {
		if s, err := archive.ParseSize(rc.MaxTotalSize); err == nil {
			policies = append(policies, &archive.SizePolicy{MaxTotalBytes: s})
		}
	}

	if len(policies) == 0 {
		return &archive.CountPolicy{MaxCount: 10}
	}
	if len(policies) == 1 {
		return policies[0]
	}
	return &archive.CompositePolicy{Policies: policies}
}

func newArchiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives with metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			_, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			dir := archive.DefaultDir(dataDir)

			archives, err := archive.List(dir)
			if err != nil {
				return fmt.Errorf("failed to list archives: %w", err)
			}

			if jsonOut {
				type jsonEntry struct {
					Path      string `json:"path"`
					Size      int64  `json:"size_bytes"`
					CreatedAt string `json:"created_at"`
					RunCount  int    `json:"run_count"`
					TickCount int    `json:"tick_count"`
				}
				entries := make([]jsonEntry, 0, len(archives))
				for _, a := range archives {
					entry := jsonEntry{
						Path:      a.Path,
						Size:      a.Size,
						CreatedAt: a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
					}
					if header, err := archive.ReadHeader(a.Path); err == nil {
						entry.RunCount = header.RunCount
						entry.TickCount = header.TickCount
					}
					entries = append(entries, entry)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"archives":  entries,
					"count":     len(entries),
					"directory": dir,
				})
			}

			if len(archives) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No archives found in %s\n", dir)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archives in %s:\n", dir)
			var totalSize int64
			for _, a := range archives {
				totalSize += a.Size
				runs := 0
				if header, err := archive.ReadHeader(a.Path); err == nil {
					runs = header.RunCount
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s  %d runs  %s\n",
					a.CreatedAt.Format("2006-01-02 15:04"),
					formatBytes(a.Size),
					runs,
					filepath.Base(a.Path))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %d archives, %s\n", len(archives), formatBytes(totalSize))
			return nil
		},
	}
}

func newArchiveVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify archive file integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			header, err := archive.Verify(path)
			if err != nil {
				if jsonOut {
					_ = json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
						"file":  path,
						"valid": false,
						"error": err.Error(),
					})
				}
				return fmt.Errorf("verification failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"file":       path,
					"valid":      true,
					"run_count":  header.RunCount,
					"tick_count": header.TickCount,
					"created_at": header.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK: checksum verified")
			fmt.Fprintf(cmd.OutOrStdout(), "  File: %s (%d runs, %d ticks)\n", path, header.RunCount, header.TickCount)
			return nil
		},
	}
}

func newArchiveRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Import runs from an archive file",
		Long: `Restore runs, outcomes and traces from an archive file.

Modes:
  merge      - Skip runs that already exist (default)
  overwrite  - Replace existing runs with the archived rows`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeStr, _ := cmd.Flags().GetString("mode")

			_, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(dataDir)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			result, err := archive.Restore(cmd.Context(), st, args[0], archive.RestoreMode(modeStr))
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d runs (%d skipped), %d outcomes, %d traces\n",
				result.RunsRestored, result.RunsSkipped, result.OutcomesRestored, result.TracesRestored)
			return nil
		},
	}

	cmd.Flags().String("mode", "merge", "Restore mode: merge or overwrite")

	return cmd
}

func newArchivePruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archives outside the retention limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keepLast, _ := cmd.Flags().GetInt("keep-last")
			keepFor, _ := cmd.Flags().GetString("keep-for")
			maxSize, _ := cmd.Flags().GetString("max-size")

			appCfg, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}

			// Flags override the configured policy when given.
			rc := appCfg.Archive.Retention
			if cmd.Flags().Changed("keep-last") {
				rc.MaxCount = keepLast
			}
			if keepFor != "" {
				if _, err := archive.ParseDuration(keepFor); err != nil {
					return err
				}
				rc.MaxAge = keepFor
			}
			if maxSize != "" {
				if _, err := archive.ParseSize(maxSize); err != nil {
					return err
				}
				rc.MaxTotalSize = maxSize
			}

			dir := archive.DefaultDir(dataDir)
			deleted, err := archive.ApplyRetention(dir, buildRetentionPolicy(rc))
			if err != nil {
				return fmt.Errorf("prune failed: %w", err)
			}

			if jsonOut {
				names := make([]string, len(deleted))
				for i, p := range deleted {
					names[i] = filepath.Base(p)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"deleted": names,
					"count":   len(names),
				})
			}
			if len(deleted) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d archives:\n", len(deleted))
			for _, p := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", filepath.Base(p))
			}
			return nil
		},
	}

	cmd.Flags().Int("keep-last", 0, "Keep the N most recent archives")
	cmd.Flags().String("keep-for", "", "Keep archives newer than this, e.g. 30d, 2w")
	cmd.Flags().String("max-size", "", "Keep archives until this total size, e.g. 500MB")

	return cmd
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1fGB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1fMB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1fKB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
