// Package sandbox restricts filesystem access for subprocess-dispatched
// LLM calls and for the orchestrator's own path checks, wrapping macOS
// Seatbelt and Linux Landlock behind a single platform-independent API
// (§4.1). The path predicates are enforced purely in Go and apply
// regardless of whether the OS-level backend is available, so the
// system degrades gracefully rather than silently losing protection.
package sandbox

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// blockedSystemDirs is the fixed block-list of system directories no
// LLM-driven subprocess may read or write, checked component-aware (never
// by raw string prefix, so "/binaries/test" never matches "/bin").
var blockedSystemDirs = []string{
	"/System", "/bin", "/sbin", "/usr/bin", "/usr/sbin", "/usr/lib",
	"/usr/libexec", "/private/etc", "/Library", "/etc", "/boot", "/proc",
	"/sys", "/dev",
}

// resolve applies best-effort symlink resolution: if the path does not
// exist yet (a common case for files about to be created), fall back to
// the cleaned absolute form instead of failing closed on the error.
func resolve(path string) string {
	cleaned := filepath.Clean(path)
	real, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		return cleaned
	}
	return real
}

// underComponent reports whether path is dir itself or nested under it,
// matching on full path components rather than a raw string prefix.
func underComponent(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}

// IsWriteBlocked reports whether path must never be written by an
// LLM-driven subprocess: relative paths fail closed; {dataDir}/data/* and
// {dataDir}/config.toml are always blocked; so is anything under the
// fixed system directory block-list.
func IsWriteBlocked(path, dataDir string) bool {
	return isProtected(path, dataDir, "")
}

// IsReadBlocked is IsWriteBlocked plus an optional extra configPath, for
// deployments where the live config file lives outside dataDir.
func IsReadBlocked(path, dataDir, configPath string) bool {
	return isProtected(path, dataDir, configPath)
}

func isProtected(path, dataDir, configPath string) bool {
	if !filepath.IsAbs(path) {
		return true // fail closed on relative paths
	}
	resolved := resolve(path)

	dataSubtree := resolve(filepath.Join(dataDir, "data"))
	if underComponent(resolved, dataSubtree) {
		return true
	}

	cfg := resolve(filepath.Join(dataDir, "config.toml"))
	if resolved == cfg {
		return true
	}
	if configPath != "" && resolved == resolve(configPath) {
		return true
	}

	for _, blocked := range blockedSystemDirs {
		if underComponent(resolved, blocked) {
			return true
		}
	}
	return false
}

// ProtectedCommand builds an *exec.Cmd for program with OS-level
// filesystem restriction applied before exec, per the platform backend
// (Seatbelt on macOS, Landlock on Linux, unrestricted-with-warning
// elsewhere). The code-level predicates above still apply independent of
// whether the OS backend is available — defense in depth.
func ProtectedCommand(program, dataDir string, args ...string) (*exec.Cmd, error) {
	return protectedCommand(program, dataDir, args...)
}
