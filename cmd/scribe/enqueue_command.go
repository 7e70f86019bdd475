package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/ipc"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var project string
	var payload string
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "enqueue <session-id>",
		Short: "Submit work for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := strings.TrimSpace(args[0])
			body := payload
			if fromStdin {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read payload from stdin: %w", err)
				}
				body = string(data)
			}
			if strings.TrimSpace(body) == "" {
				return fmt.Errorf("payload is required (use --payload or --stdin)")
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(sessionID, project, body)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued item %s for session %s\n", resp.Item.ID, sessionID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project the session belongs to")
	cmd.Flags().StringVar(&payload, "payload", "", "Work payload")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the payload from standard input")
	return cmd
}
