package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type draftView struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Status string `json:"status"`
}

func newReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Iterate drafts in_review, prompting approve/edit/reject/skip",
		RunE:  runReview,
	}
}

func runReview(cmd *cobra.Command, args []string) error {
	c := clientFromCmd(cmd)

	q := url.Values{}
	q.Set("status", "in_review")
	if c.client != "" {
		q.Set("client", c.client)
	}

	var drafts []draftView
	if err := c.do("GET", "/api/approval/queue?"+q.Encode(), nil, &drafts); err != nil {
		return err
	}
	if len(drafts) == 0 {
		fmt.Println("no drafts in_review")
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	for _, d := range drafts {
		fmt.Printf("\n[%s] %s\n", d.ID, d.Body)
		fmt.Print("approve/edit/reject/skip/quit? [a/e/r/s/q]: ")
		line, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(strings.ToLower(line))

		var err error
		switch choice {
		case "a":
			err = c.do("POST", "/api/approval/drafts/"+d.ID+"/approve", map[string]string{"publish_mode": "auto"}, nil)
		case "e":
			fmt.Print("new copy: ")
			newCopy, _ := reader.ReadString('\n')
			err = c.do("POST", "/api/approval/drafts/"+d.ID+"/edit", map[string]string{"copy": strings.TrimRight(newCopy, "\n")}, nil)
		case "r":
			fmt.Print("guidance: ")
			guidance, _ := reader.ReadString('\n')
			err = c.do("POST", "/api/approval/drafts/"+d.ID+"/reject", map[string]any{"guidance": strings.TrimRight(guidance, "\n")}, nil)
		case "s":
			err = c.do("POST", "/api/approval/drafts/"+d.ID+"/skip", nil, nil)
		case "q":
			return nil
		default:
			fmt.Println("unrecognized choice, skipping")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
