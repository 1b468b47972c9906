package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecoverCmd() *cobra.Command {
	var reason, urgency string
	cmd := &cobra.Command{
		Use:   "recover <id>",
		Short: "Take down a published draft and archive it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if urgency != "immediate" && urgency != "review" {
				return fmt.Errorf("--urgency must be immediate or review, got %q", urgency)
			}
			c := clientFromCmd(cmd)
			var recLog map[string]any
			if err := c.do("POST", "/api/approval/drafts/"+args[0]+"/recover",
				map[string]string{"reason": reason, "urgency": urgency}, &recLog); err != nil {
				return err
			}
			fmt.Printf("recovery status: %v\n", recLog["status"])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason for takedown")
	cmd.Flags().StringVar(&urgency, "urgency", "review", "immediate or review")
	return cmd
}
