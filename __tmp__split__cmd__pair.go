package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/omegacortex/omega/pkg/channels/whatsapp"
	"github.com/omegacortex/omega/pkg/config"
)

func newPairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Standalone WhatsApp QR pairing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPair(cmd)
		},
	}
}

func runPair(cmd *cobra.Command) error {
	dir := config.ExpandHome(dataDir)
	cfg, _, err := config.Load(dir)
	if err != nil {
		return precondition(fmt.Errorf("load config: %w", err))
	}
	waCfg := cfg.Channels["whatsapp"]
	dbPath := config.ExpandHome(waCfg.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(dir, "whatsapp.db")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, err := whatsapp.Pair(ctx, dbPath)
	if err != nil {
		return recoverable(fmt.Errorf("pairing failed to start: %w", err))
	}

	out := cmd.OutOrStdout()
	for res := range results {
		if res.QRCode != "" {
			fmt.Fprintln(out, "\nScan this QR code with WhatsApp (Linked Devices):")
			qrterminal.GenerateHalfBlock(res.QRCode, qrterminal.L, os.Stdout)
			continue
		}
		if res.Done {
			if res.Success {
				fmt.Fprintln(out, "\nPaired successfully. Enable [channel.whatsapp] in config.toml and run `omega start`.")
				return nil
			}
			return recoverable(fmt.Errorf("pairing failed: %s", res.Error))
		}
	}
	return nil
}


