// Package cmd implements the cobra CLI surface (§6): init, start, pair, status.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omegacortex/omega/pkg/config"
)

// exit codes per §6.
const (
	exitOK            = 0
	exitRecoverable   = 1
	exitPrecondition  = 2
)

// cliError carries the process exit code a failure should produce.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func precondition(err error) error { return &cliError{code: exitPrecondition, err: err} }
func recoverable(err error) error  { return &cliError{code: exitRecoverable, err: err} }

var dataDir string

// NewRootCmd builds the "omega" root command and its subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "omega",
		Short:         "omega — a long-running, marker-driven LLM gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", config.DefaultDataDir(), "directory holding config.toml and persisted state")

	root.AddCommand(newInitCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newPairCmd())
	root.AddCommand(newStatusCmd())
	return root
}

// Execute runs the root command and translates any cliError into the
// matching process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var ce *cliError
		if ok := asCLIError(err, &ce); ok {
			return ce.code
		}
		return exitRecoverable
	}
	return exitOK
}

func asCLIError(err error, target **cliError) bool {
	for err != nil {
		if ce, ok := err.(*cliError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}


