package channels

import "github.com/omegacortex/omega/pkg/config"

// AllowList implements gateway.Authorizer over each channel's configured
// allow-list, falling back to the cross-channel [auth] list when a
// channel doesn't define its own.
type AllowList struct {
	perChannel map[string]map[string]bool
	fallback   map[string]bool
}

// NewAllowList builds an AllowList from the parsed config sections.
func NewAllowList(channelCfgs map[string]config.ChannelConfig, authCfg config.AuthConfig) *AllowList {
	a := &AllowList{perChannel: make(map[string]map[string]bool)}
	for name, cfg := range channelCfgs {
		if len(cfg.AllowedUsers) == 0 {
			continue
		}
		set := make(map[string]bool, len(cfg.AllowedUsers))
		for _, u := range cfg.AllowedUsers {
			set[u] = true
		}
		a.perChannel[name] = set
	}
	if len(authCfg.AllowedUsers) > 0 {
		a.fallback = make(map[string]bool, len(authCfg.AllowedUsers))
		for _, u := range authCfg.AllowedUsers {
			a.fallback[u] = true
		}
	}
	return a
}

// Allowed reports whether senderID may use channel. An empty allow-list
// (both per-channel and fallback) means "allow everyone", matching the
// reference gateway's single-user-friendly default.
func (a *AllowList) Allowed(channel, senderID string) bool {
	if set, ok := a.perChannel[channel]; ok {
		return set[senderID]
	}
	if a.fallback != nil {
		return a.fallback[senderID]
	}
	return true
}
