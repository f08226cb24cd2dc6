package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omegacortex/omega/pkg/channels"
	_ "github.com/omegacortex/omega/pkg/channels/telegram"
	_ "github.com/omegacortex/omega/pkg/channels/whatsapp"
	"github.com/omegacortex/omega/pkg/config"
	"github.com/omegacortex/omega/pkg/dashboard"
	"github.com/omegacortex/omega/pkg/gateway"
	"github.com/omegacortex/omega/pkg/heartbeat"
	"github.com/omegacortex/omega/pkg/monitor"
	"github.com/omegacortex/omega/pkg/provider"
	_ "github.com/omegacortex/omega/pkg/provider/cliprovider"
	_ "github.com/omegacortex/omega/pkg/provider/httpprovider"
	"github.com/omegacortex/omega/pkg/scheduler"
	"github.com/omegacortex/omega/pkg/setup"
	"github.com/omegacortex/omega/pkg/store"
	"github.com/omegacortex/omega/pkg/summarizer"
	"github.com/omegacortex/omega/pkg/topology"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the gateway: channels, heartbeat, scheduler, and summarizer loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

// runStart mirrors the reference gateway's outer retry loop: a crash (or a
// config file edit, via fsnotify) tears everything down and rebuilds it
// rather than trying to patch a live config in place.
func runStart() error {
	dir := config.ExpandHome(dataDir)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, sysCfg, err := config.Load(dir); err == nil {
		monitor.SetupEnvironment(sysCfg.LogLevel)
	} else {
		monitor.SetupEnvironment("info")
	}

	reloadCh := config.WatchConfig(ctx, dir+"/config.toml")

	for {
		err := runOnce(ctx, dir, reloadCh)
		if err != nil {
			slog.Error("gateway run failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-reloadCh:
				slog.Info("config change detected while recovering; retrying immediately")
			case <-time.After(5 * time.Second):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		default:
			slog.Info("config reloaded; restarting gateway")
		}
	}
}

// runOnce builds the full dependency graph from one config snapshot and
// blocks until shutdown or a reload signal tears it down.
func runOnce(ctx context.Context, dir string, reloadCh <-chan struct{}) error {
	cfg, sysCfg, err := config.Load(dir)
	if err != nil {
		return precondition(fmt.Errorf("load config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return precondition(fmt.Errorf("invalid config: %w", err))
	}

	dbPath := config.ExpandHome(cfg.Memory.DBPath)
	s, err := store.Open(dbPath)
	if err != nil {
		return precondition(fmt.Errorf("open memory store: %w", err))
	}
	defer s.Close()

	prov, err := primaryProvider(cfg)
	if err != nil {
		return precondition(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	gw := &gateway.Gateway{
		Store:              s,
		Provider:           prov,
		DataDir:            dir,
		DenyMessage:        cfg.Auth.DenyMessage,
		MaxContextMessages: cfg.Memory.MaxContextMessages,
		MaxTurns:           cfg.Providers[primaryProviderName(cfg)].MaxTurns,
		SystemIdentity:     cfg.Omega.SystemPrompt,
		Setup: &setup.Machine{
			Store:    s,
			Provider: prov,
			DataDir:  dir,
		},
		Summarizer: &summarizer.Summarizer{Store: s, Provider: prov},
		Topology: &topology.Runner{
			Store:    s,
			Provider: prov,
			DataDir:  dir,
		},
		Auth: channels.NewAllowList(cfg.Channels, cfg.Auth),
	}

	chs := channels.NewSource(cfg.Channels, gw, sysCfg).Load()
	hub := channels.NewHub(chs)
	gw.Sender = hub
	gw.Typing = hub
	gw.Topology.Notifier = hub

	notifyChannel, notifyTarget := primaryNotifyTarget(cfg)
	gw.Topology.Channel, gw.Topology.ReplyTarget = notifyChannel, notifyTarget

	for _, c := range chs {
		if err := c.Start(runCtx); err != nil {
			slog.Error("channel failed to start", "channel", c.ID(), "error", err)
		} else {
			slog.Info("channel started", "channel", c.ID())
		}
	}
	defer func() {
		for _, c := range chs {
			if err := c.Stop(); err != nil {
				slog.Error("channel failed to stop", "channel", c.ID(), "error", err)
			}
		}
	}()

	go gw.Summarizer.Run(runCtx)

	hb := &heartbeat.Heartbeat{
		Store:       s,
		Sender:      hub,
		Provider:    prov,
		Channel:     notifyChannel,
		ReplyTarget: notifyTarget,
		DataDir:     dir,
		ActiveStart: cfg.Heartbeat.ActiveStart,
		ActiveEnd:   cfg.Heartbeat.ActiveEnd,
	}
	if cfg.Heartbeat.IntervalMinutes > 0 {
		hb.SetIntervalSeconds(cfg.Heartbeat.IntervalMinutes * 60)
	}
	go hb.Run(runCtx)

	sched := &scheduler.Scheduler{
		Store:       s,
		Sender:      hub,
		Provider:    prov,
		PollSeconds: cfg.Scheduler.PollSeconds,
		ActiveStart: cfg.Scheduler.ActiveStart,
		ActiveEnd:   cfg.Scheduler.ActiveEnd,
		MaxTurns:    gw.MaxTurns,
	}
	go sched.Run(runCtx)

	if cfg.API.Enabled {
		waCfg := cfg.Channels["whatsapp"]
		dash := &dashboard.Server{
			APIKey:   cfg.API.APIKey,
			Addr:     fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
			WADBPath: config.ExpandHome(waCfg.DBPath),
		}
		go func() {
			if err := dash.Start(runCtx); err != nil {
				slog.Error("dashboard stopped", "error", err)
			}
		}()
	}

	slog.Info("omega gateway running", "channels", len(chs), "data_dir", dir)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		return nil
	case <-reloadCh:
		return nil
	}
}

// primaryNotifyTarget picks the destination for proactive, not-reply-driven
// messages (heartbeat summaries, topology progress): the first enabled
// channel whose config names a default reply_target.
func primaryNotifyTarget(cfg *config.Config) (channel, replyTarget string) {
	var names []string
	for name := range cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := cfg.Channels[name]
		if c.Enabled && c.ReplyTarget != "" {
			return name, c.ReplyTarget
		}
	}
	return "", ""
}

// primaryProviderName picks the first enabled provider in lexical key
// order, giving the operator a deterministic choice when more than one
// [provider.*] section is enabled.
func primaryProviderName(cfg *config.Config) string {
	var names []string
	for name, p := range cfg.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func primaryProvider(cfg *config.Config) (provider.Provider, error) {
	name := primaryProviderName(cfg)
	if name == "" {
		return nil, fmt.Errorf("no enabled [provider.*] section found")
	}
	pc := cfg.Providers[name]

	switch pc.Kind {
	case "cli":
		return provider.New("cli", name, map[string]any{
			"program":  pc.Command,
			"data_dir": config.ExpandHome(dataDir),
		})
	case "http":
		return provider.New("http", name, map[string]any{
			"api_key":  pc.APIKey,
			"base_url": pc.BaseURL,
			"model":    pc.Model,
		})
	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q", name, pc.Kind)
	}
}
