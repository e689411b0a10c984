package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/clusterplug/clusterplug/internal/daemon"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print client and daemon versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "client: %s\n", daemon.Version)

		var v struct {
			Version string            `json:"version"`
			Node    map[string]string `json:"node"`
		}
		if err := newAPIClient(daemonAddr()).get("/api/version", nil, &v); err != nil {
			fmt.Fprintln(out, "daemon: not running")
			return nil
		}
		fmt.Fprintf(out, "daemon: %s\n", v.Version)

		keys := make([]string, 0, len(v.Node))
		for k := range v.Node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s: %s\n", k, v.Node[k])
		}
		return nil
	},
}
