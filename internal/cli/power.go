package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(suspendCmd, resumeCmd)
}

var suspendCmd = &cobra.Command{
	Use:   "suspend",
	Short: "Force the suspend policy (little cluster only) and pause the loop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return postPower(cmd, "suspend", "suspended")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Restore both clusters and restart the loop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return postPower(cmd, "resume", "resumed")
	},
}

func postPower(cmd *cobra.Command, action, done string) error {
	if err := newAPIClient(daemonAddr()).do(http.MethodPost, "/api/power/"+action, nil, nil, nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), done)
	return nil
}
