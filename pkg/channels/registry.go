// Package channels hosts the registry of messaging transports (Telegram,
// WhatsApp) the gateway sends and receives through, mirroring the
// reference gateway's auto-registering ChannelFactory pattern.
package channels

import (
	"context"

	"github.com/omegacortex/omega/pkg/config"
	"github.com/omegacortex/omega/pkg/gateway"
)

// Channel is a running messaging transport. Concrete implementations
// also satisfy gateway.Sender and gateway.Typing, and forward inbound
// messages to a *gateway.Gateway themselves.
type Channel interface {
	ID() string
	Start(ctx context.Context) error
	Stop() error
}

// Factory instantiates a platform-specific Channel from its config
// section plus the shared gateway and system config.
type Factory interface {
	Create(cfg config.ChannelConfig, gw *gateway.Gateway, system *config.SystemConfig) (Channel, error)
}

var registry = make(map[string]Factory)

// Register adds a Factory to the global registry, typically called from
// a channel package's init().
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Get retrieves a registered Factory by platform name.
func Get(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}
