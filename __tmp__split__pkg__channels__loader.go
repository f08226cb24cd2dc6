package channels

import (
	"log/slog"

	"github.com/omegacortex/omega/pkg/config"
	"github.com/omegacortex/omega/pkg/gateway"
)

// Source builds the set of enabled channels from configuration.
type Source struct {
	configs map[string]config.ChannelConfig
	gw      *gateway.Gateway
	system  *config.SystemConfig
}

// NewSource creates a Source over the parsed [channel.*] sections.
func NewSource(configs map[string]config.ChannelConfig, gw *gateway.Gateway, system *config.SystemConfig) *Source {
	return &Source{configs: configs, gw: gw, system: system}
}

// Load instantiates every enabled, registered channel, logging and
// skipping any that fail to construct rather than aborting startup.
func (s *Source) Load() []Channel {
	var result []Channel
	for name, cfg := range s.configs {
		if !cfg.Enabled {
			continue
		}
		factory, ok := Get(name)
		if !ok {
			slog.Warn("channels: unknown channel type", "name", name)
			continue
		}
		ch, err := factory.Create(cfg, s.gw, s.system)
		if err != nil {
			slog.Error("channels: failed to create channel", "name", name, "error", err)
			continue
		}
		if ch == nil {
			continue
		}
		result = append(result, ch)
		slog.Info("channels: channel created", "name", name)
	}
	return result
}


