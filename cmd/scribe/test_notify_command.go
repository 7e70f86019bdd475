package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				fmt.Fprintln(cmd.OutOrStdout(), notifyOutcome(resp))
				return nil
			})
		},
	}
}

// notifyOutcome prefers the daemon's own message, which carries the reason
// when notifications are disabled or misconfigured.
func notifyOutcome(resp *ipc.TestNotificationResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	if resp.Sent {
		return "Test notification sent"
	}
	return "Notification not sent"
}
