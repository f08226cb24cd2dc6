// Package assets embeds the bundled default topology so a fresh data
// directory has a working pipeline with no network fetch.
package assets

import "embed"

//go:embed topologies/default
var DefaultTopologyFS embed.FS


