package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"townhall/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Post a low-priority test message to the ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
			if topic == "" {
				fmt.Fprintln(out, "ntfy topic not configured")
				return nil
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification to %s: %w", topic, err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
