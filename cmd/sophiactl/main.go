// Command sophiactl is the operator's CLI front end: a thin HTTP client
// against a running sophia server, for reviewing the approval queue and
// issuing recover/pause/resume actions from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes per the operator-facing CLI contract.
const (
	exitSuccess         = 0
	exitInvalidArgs      = 2
	exitStoreUnavailable = 3
	exitConflict         = 4
)

func main() {
	root := &cobra.Command{
		Use:   "sophiactl",
		Short: "Operate the Sophia approval, publishing, and recovery core from a terminal",
	}
	root.PersistentFlags().String("base-url", envOr("BASE_URL", "http://localhost:8080"), "sophia server base URL")
	root.PersistentFlags().String("token", os.Getenv("SOPHIA_API_TOKEN"), "operator API token")
	root.PersistentFlags().String("client", "", "client ID to scope the request to")

	root.AddCommand(newReviewCmd(), newRecoverCmd(), newPauseCmd(), newResumeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitFromError(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
