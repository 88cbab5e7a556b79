package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"townhall/internal/queueaccess"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Inspect video encoding records",
	}
	videoCmd.AddCommand(&cobra.Command{
		Use:   "show <videoID>",
		Short: "Show a video's encoding status and published URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireArg(args, "video id")
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				video, err := access.Video(cmd.Context(), id)
				if err != nil {
					return err
				}
				if video == nil {
					return fmt.Errorf("video %s not found", id)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, video)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDetails(videoDetails(*video)))
				return nil
			})
		},
	})
	return videoCmd
}
