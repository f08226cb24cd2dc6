//go:build darwin

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// seatbeltProfile renders an Apple Seatbelt (TinyScheme) profile string
// granting the process full access to $HOME, /tmp and the usual
// conditional system paths, read+execute everywhere else, and an
// explicit deny on the protected data subtree and config file — applied
// on top of (not instead of) the Go-level path predicates in sandbox.go.
func seatbeltProfile(dataDir string) string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(allow default)\n")
	b.WriteString("(deny file-write* (subpath \"/\"))\n")
	b.WriteString("(allow file-write* (subpath (param \"HOME\")))\n")
	b.WriteString("(allow file-write* (subpath \"/tmp\"))\n")
	b.WriteString("(allow file-write* (subpath \"/private/tmp\"))\n")
	for _, p := range []string{"/var/tmp", "/opt", "/srv", "/run", "/media", "/mnt"} {
		if _, err := os.Stat(p); err == nil {
			fmt.Fprintf(&b, "(allow file-write* (subpath %q))\n", p)
		}
	}

	dataSubtree := filepath.Join(dataDir, "data")
	fmt.Fprintf(&b, "(deny file-write* (subpath %q))\n", dataSubtree)
	fmt.Fprintf(&b, "(deny file-read* (subpath %q))\n", dataSubtree)
	cfg := filepath.Join(dataDir, "config.toml")
	fmt.Fprintf(&b, "(deny file-write* (literal %q))\n", cfg)
	fmt.Fprintf(&b, "(deny file-read* (literal %q))\n", cfg)
	return b.String()
}

// protectedCommand shells out through sandbox-exec with a profile
// generated per call, so the data dir can vary between provider configs
// without needing a profile file on disk.
func protectedCommand(program, dataDir string, args ...string) (*exec.Cmd, error) {
	profile := seatbeltProfile(dataDir)
	home, _ := os.UserHomeDir()
	profile = strings.ReplaceAll(profile, `(param "HOME")`, fmt.Sprintf("%q", home))

	sbArgs := append([]string{"-p", profile, program}, args...)
	return exec.Command("sandbox-exec", sbArgs...), nil
}
