package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/omegacortex/omega/pkg/config"
	"github.com/omegacortex/omega/pkg/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print last-activity time, memory db size, and configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	dir := config.ExpandHome(dataDir)
	cfg, _, err := config.Load(dir)
	if err != nil {
		return precondition(fmt.Errorf("load config: %w", err))
	}

	dbPath := config.ExpandHome(cfg.Memory.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(dir, "data", "memory.db")
	}

	out := cmd.OutOrStdout()

	if info, err := os.Stat(dbPath); err == nil {
		fmt.Fprintf(out, "memory db:      %s (%.1f KiB)\n", dbPath, float64(info.Size())/1024)
	} else {
		fmt.Fprintf(out, "memory db:      %s (not yet created)\n", dbPath)
	}

	fmt.Fprintf(out, "providers:      %s\n", describeProviders(cfg))

	s, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(out, "last activity:  unavailable (%v)\n", err)
		return nil
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	last, err := s.LastAuditTimestamp(ctx)
	if err != nil || last.IsZero() {
		fmt.Fprintln(out, "last activity:  none recorded yet")
		return nil
	}
	fmt.Fprintf(out, "last activity:  %s (%s ago)\n", last.Format(time.RFC3339), time.Since(last).Round(time.Second))
	return nil
}

func describeProviders(cfg *config.Config) string {
	var names []string
	for name, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		names = append(names, fmt.Sprintf("%s(%s/%s)", name, p.Kind, p.Model))
	}
	if len(names) == 0 {
		return "none enabled"
	}
	sort.Strings(names)
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}


