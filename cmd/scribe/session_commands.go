package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/ipc"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List tracked session history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionList()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}

				out := cmd.OutOrStdout()
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(out, "No sessions recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Sessions))
				for _, session := range resp.Sessions {
					rows = append(rows, []string{
						session.ID,
						session.Project,
						session.Status,
						session.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				table := renderTable(
					[]string{"Session", "Project", "Status", "Updated"},
					rows,
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}
