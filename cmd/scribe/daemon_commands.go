package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scribed daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the scribed daemon (drains active sessions first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 30*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the scribed daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				30*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCommand(cmd, ctx)
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func runStatusCommand(cmd *cobra.Command, ctx *commandContext) error {
	stdout := cmd.OutOrStdout()
	client, err := ctx.dialClient()
	if err != nil {
		if ctx.JSONMode() {
			return writeJSON(cmd, map[string]any{"state": "stopped"})
		}
		colorize := shouldColorize(stdout)
		for _, line := range renderSectionHeader("Daemon", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, renderStatusLine("Scribe", statusWarn, "Not running (run `scribe start`)", colorize))
		return nil
	}
	defer client.Close()

	resp, err := client.Status()
	if err != nil {
		return err
	}
	if ctx.JSONMode() {
		return writeJSON(cmd, resp)
	}

	colorize := shouldColorize(stdout)
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	stateKind := statusWarn
	if resp.State == "fully_ready" {
		stateKind = statusOK
	}
	fmt.Fprintln(stdout, renderStatusLine("Scribe", stateKind, resp.State, colorize))
	processing := "Idle"
	if resp.Processing {
		processing = "Active"
	}
	fmt.Fprintln(stdout, renderStatusLine("Processing", statusInfo, processing, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Tracked sessions", statusInfo, fmt.Sprintf("%d", resp.TrackedSessions), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Queue depth", statusInfo, fmt.Sprintf("%d", resp.QueueDepth), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, resp.DBPath, colorize))
	fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", resp.PID), colorize))

	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("Queue Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := buildQueueStatusRows(resp.QueueStats)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "Queue is empty")
		return nil
	}
	table := renderTable([]string{"Status", "Count"}, rows, 1)
	fmt.Fprintln(stdout, table)
	return nil
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key, count := range stats {
		if count == 0 {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
