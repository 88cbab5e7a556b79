package main

import (
	"github.com/spf13/cobra"
)

const (
	groupQueue = "queue"
	groupOps   = "ops"
)

func newRootCommand() *cobra.Command {
	var flags globalFlags
	ctx := newCommandContext(&flags)

	root := &cobra.Command{
		Use:           "townhall",
		Short:         "Manage the townhall encoding queue and daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.api, "api", "", "Daemon API address (defaults to paths.api_bind)")
	pf.StringVar(&flags.token, "token", "", "Bearer token for the daemon API (or TOWNHALL_TOKEN)")
	pf.BoolVar(&flags.offline, "offline", false, "Skip the daemon API and open the local databases")
	pf.BoolVar(&flags.json, "json", false, "Emit JSON instead of tables")

	root.AddGroup(
		&cobra.Group{ID: groupQueue, Title: "Jobs and videos:"},
		&cobra.Group{ID: groupOps, Title: "Operations:"},
	)
	grouped := map[string][]*cobra.Command{
		groupQueue: {newQueueCommand(ctx), newVideoCommand(ctx)},
		groupOps: {
			newStatusCommand(ctx),
			newDepsCommand(ctx),
			newDaemonCommand(ctx),
			newLogsCommand(ctx),
			newTokenCommand(ctx),
			newTestNotifyCommand(ctx),
			newConfigCommand(ctx),
		},
	}
	for group, cmds := range grouped {
		for _, cmd := range cmds {
			cmd.GroupID = group
			root.AddCommand(cmd)
		}
	}
	return root
}
