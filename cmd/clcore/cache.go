package main

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clcore/internal/kcache"
)

var (
	keepLast      int
	olderThanDays int
	forceClear    bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the program binary cache",
	Long: `Inspect and prune the program binary cache. Cached binaries let a kernel that
was built once for a device set load again without invoking the compiler.`,
}

var listCacheCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached program binaries",
	RunE:  runListCache,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached program binaries",
	Long: `Delete cached program binaries. Without --keep-last or --older-than every entry
is deleted.`,
	RunE: runClearCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.AddCommand(listCacheCmd)
	cacheCmd.AddCommand(clearCacheCmd)

	clearCacheCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N entries (0 = no count limit)")
	clearCacheCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete entries older than N days (0 = no age limit)")
	clearCacheCmd.Flags().BoolVarP(&forceClear, "force", "f", false, "Skip confirmation prompt")
}

func openCache() (*kcache.FSStore, error) {
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("no cache directory configured (use --cache-dir or cache_dir)")
	}
	store, err := kcache.NewFSStore(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open program cache: %w", err)
	}
	return store, nil
}

func runListCache(cmd *cobra.Command, args []string) error {
	store, err := openCache()
	if err != nil {
		return err
	}

	infos, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No cached programs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tENTRY\tDEVICES\tCREATED\tSIZE")
	fmt.Fprintln(w, "---\t----\t-----\t-------\t-------\t----")

	var total int64
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Key,
			info.Name,
			info.EntryPoint,
			strings.Join(info.Devices, ", "),
			info.Created.Format("2006-01-02 15:04:05"),
			formatBytes(int64(info.Bytes)),
		)
		total += int64(info.Bytes)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal entries: %d (%s)\n", len(infos), formatBytes(total))
	return nil
}

func runClearCache(cmd *cobra.Command, args []string) error {
	store, err := openCache()
	if err != nil {
		return err
	}

	infos, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No cached programs to clear.")
		return nil
	}

	toDelete := selectEntriesForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No cache entries match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d cache entr(ies) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s %s (%s)\n", info.Key, info.Name, info.Created.Format("2006-01-02 15:04:05"))
	}

	if !forceClear {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := store.Delete(info.Key); err != nil {
			slog.Error("Failed to delete cache entry", "key", info.Key, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted cache entry", "key", info.Key, "name", info.Name)
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d entr(ies), %d failed.\n", deleted, failed)
	return nil
}

// selectEntriesForDeletion applies the retention policy. With neither limit set
// every entry is selected.
func selectEntriesForDeletion(infos []kcache.Info, keepLast, olderThanDays int, now time.Time) []kcache.Info {
	if keepLast <= 0 && olderThanDays <= 0 {
		return slices.Clone(infos)
	}

	selected := make(map[string]bool)
	var toDelete []kcache.Info
	add := func(info kcache.Info) {
		if !selected[info.Key] {
			selected[info.Key] = true
			toDelete = append(toDelete, info)
		}
	}

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Created.Before(cutoff) {
				add(info)
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := slices.Clone(infos)
		slices.SortStableFunc(sorted, func(a, b kcache.Info) int {
			return a.Created.Compare(b.Created)
		})
		for _, info := range sorted[:len(sorted)-keepLast] {
			add(info)
		}
	}

	return toDelete
}
