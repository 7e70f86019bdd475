package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/ipc"
)

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var sessionLimit int

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Run a recovery sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Recover(sessionLimit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Items reset: %d\n", resp.ItemsReset)
				fmt.Fprintf(out, "Sessions expired: %d\n", resp.SessionsExpired)
				fmt.Fprintf(out, "Sessions with pending work: %d\n", resp.TotalPendingSessions)
				fmt.Fprintf(out, "Sessions started: %d\n", resp.SessionsStarted)
				if len(resp.StartedIDs) > 0 {
					fmt.Fprintf(out, "Started: %s\n", strings.Join(resp.StartedIDs, ", "))
				}
				if resp.SessionsSkipped > 0 {
					fmt.Fprintf(out, "Sessions skipped: %d (%s)\n", resp.SessionsSkipped, strings.Join(resp.SkippedIDs, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&sessionLimit, "limit", 0, "Maximum sessions to start (0 uses the configured limit)")
	return cmd
}
