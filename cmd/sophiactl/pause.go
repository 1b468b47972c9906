package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Halt publish dispatch without stopping new entries from being scheduled",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFromCmd(cmd)
			var state map[string]any
			if err := c.do("POST", "/api/approval/publishing/pause", nil, &state); err != nil {
				return err
			}
			fmt.Println("publishing paused")
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume publish dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFromCmd(cmd)
			var state map[string]any
			if err := c.do("POST", "/api/approval/publishing/resume", nil, &state); err != nil {
				return err
			}
			fmt.Println("publishing resumed")
			return nil
		},
	}
}
