package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omegacortex/omega/pkg/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard: writes config.toml and bootstraps ~/.omega/",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, config.ExpandHome(dataDir))
		},
	}
}

func runInit(cmd *cobra.Command, dir string) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	fmt.Fprintf(out, "omega init — bootstrapping %s\n\n", dir)

	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err == nil {
		fmt.Fprintf(out, "config.toml already exists at %s; leaving it in place.\n", dir)
	} else {
		providerKind := ask(out, reader, "Provider kind (cli/http)", "cli")
		providerModel := ask(out, reader, "Model name", "")
		systemPrompt := ask(out, reader, "System prompt (identity shown to the LLM)", "You are Omega, a helpful personal assistant.")
		telegramToken := ask(out, reader, "Telegram bot token (blank to skip)", "")

		if err := writeDefaultConfig(dir, providerKind, providerModel, systemPrompt, telegramToken); err != nil {
			return precondition(fmt.Errorf("failed to write config: %w", err))
		}
		fmt.Fprintf(out, "\nWrote %s\n", filepath.Join(dir, "config.toml"))
	}

	if err := bootstrapLayout(dir); err != nil {
		return precondition(fmt.Errorf("failed to bootstrap workspace: %w", err))
	}
	fmt.Fprintf(out, "Initialized workspace layout under %s\n", dir)

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  - edit config.toml to enable channels and set allowed_users")
	fmt.Fprintln(out, "  - run `omega pair` if you enabled WhatsApp")
	fmt.Fprintln(out, "  - run `omega start` to launch the gateway")
	return nil
}

func ask(out io.Writer, r *bufio.Reader, prompt, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(out, "%s: ", prompt)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func writeDefaultConfig(dir, providerKind, providerModel, systemPrompt, telegramToken string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	telegramEnabled := telegramToken != ""
	var b strings.Builder
	fmt.Fprintf(&b, "[omega]\n")
	fmt.Fprintf(&b, "data_dir = %q\n", dir)
	fmt.Fprintf(&b, "system_prompt = %q\n", systemPrompt)
	fmt.Fprintf(&b, "log_level = \"info\"\n\n")

	fmt.Fprintf(&b, "[auth]\n")
	fmt.Fprintf(&b, "allowed_users = []\n\n")

	fmt.Fprintf(&b, "[provider.default]\n")
	fmt.Fprintf(&b, "enabled = true\n")
	fmt.Fprintf(&b, "kind = %q\n", providerKind)
	if providerModel != "" {
		fmt.Fprintf(&b, "model = %q\n", providerModel)
	}
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "[channel.telegram]\n")
	fmt.Fprintf(&b, "enabled = %v\n", telegramEnabled)
	fmt.Fprintf(&b, "bot_token = %q\n", telegramToken)
	fmt.Fprintf(&b, "allowed_users = []\n")
	fmt.Fprintf(&b, "reply_target = \"\" # chat id for heartbeat/scheduler notifications\n\n")

	fmt.Fprintf(&b, "[channel.whatsapp]\n")
	fmt.Fprintf(&b, "enabled = false\n")
	fmt.Fprintf(&b, "db_path = %q\n", filepath.Join(dir, "whatsapp.db"))
	fmt.Fprintf(&b, "allowed_users = []\n")
	fmt.Fprintf(&b, "reply_target = \"\"\n\n")

	fmt.Fprintf(&b, "[memory]\n")
	fmt.Fprintf(&b, "db_path = %q\n", filepath.Join(dir, "data", "memory.db"))
	fmt.Fprintf(&b, "max_context_messages = 30\n\n")

	fmt.Fprintf(&b, "[heartbeat]\n")
	fmt.Fprintf(&b, "interval_minutes = 30\n")
	fmt.Fprintf(&b, "active_start = \"08:00\"\n")
	fmt.Fprintf(&b, "active_end = \"22:00\"\n\n")

	fmt.Fprintf(&b, "[scheduler]\n")
	fmt.Fprintf(&b, "poll_seconds = 30\n")
	fmt.Fprintf(&b, "active_start = \"08:00\"\n")
	fmt.Fprintf(&b, "active_end = \"22:00\"\n\n")

	fmt.Fprintf(&b, "[api]\n")
	fmt.Fprintf(&b, "enabled = false\n")
	fmt.Fprintf(&b, "host = \"127.0.0.1\"\n")
	fmt.Fprintf(&b, "port = 8787\n")
	fmt.Fprintf(&b, "api_key = \"\"\n")

	return os.WriteFile(filepath.Join(dir, "config.toml"), []byte(b.String()), 0o640)
}

// bootstrapLayout creates the persisted-state directory tree (§6) so the
// gateway, setup machine, and topology orchestrator have somewhere to write
// on their very first run.
func bootstrapLayout(dir string) error {
	dirs := []string{
		filepath.Join(dir, "data"),
		filepath.Join(dir, "workspace", "builds"),
		filepath.Join(dir, "workspace", "discovery"),
		filepath.Join(dir, "setup"),
		filepath.Join(dir, "topologies"),
		filepath.Join(dir, "projects"),
		filepath.Join(dir, "skills"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
