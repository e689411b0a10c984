package cli

import (
	"fmt"
	"net/http"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	tunablesCmd.AddCommand(tunablesGetCmd, tunablesSetCmd, tunablesResetCmd)
	rootCmd.AddCommand(tunablesCmd)
}

var tunablesCmd = &cobra.Command{
	Use:     "tunables",
	Aliases: []string{"tun"},
	Short:   "List or change controller tunables",
	Args:    cobra.NoArgs,
	RunE:    runTunablesList,
}

var tunablesGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Print one tunable",
	Args:  cobra.ExactArgs(1),
	RunE:  runTunablesGet,
}

var tunablesSetCmd = &cobra.Command{
	Use:   "set NAME VALUE",
	Short: "Change a tunable; the value is persisted across restarts",
	Args:  cobra.ExactArgs(2),
	RunE:  runTunablesSet,
}

var tunablesResetCmd = &cobra.Command{
	Use:   "reset NAME",
	Short: "Forget a persisted value so the config file applies at next start",
	Args:  cobra.ExactArgs(1),
	RunE:  runTunablesReset,
}

type tunableResp struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Persisted bool   `json:"persisted"`
}

func runTunablesList(cmd *cobra.Command, args []string) error {
	var all map[string]string
	if err := newAPIClient(daemonAddr()).get("/api/tunables", nil, &all); err != nil {
		return err
	}

	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE")
	for _, n := range names {
		fmt.Fprintf(w, "%s\t%s\n", n, all[n])
	}
	return w.Flush()
}

func runTunablesGet(cmd *cobra.Command, args []string) error {
	var t tunableResp
	if err := newAPIClient(daemonAddr()).get("/api/tunables/"+args[0], nil, &t); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Value)
	return nil
}

func runTunablesSet(cmd *cobra.Command, args []string) error {
	var t tunableResp
	body := map[string]string{"value": args[1]}
	if err := newAPIClient(daemonAddr()).do(http.MethodPut, "/api/tunables/"+args[0], nil, body, &t); err != nil {
		return err
	}
	note := ""
	if !t.Persisted {
		note = " (not persisted)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s%s\n", t.Name, t.Value, note)
	return nil
}

func runTunablesReset(cmd *cobra.Command, args []string) error {
	if err := newAPIClient(daemonAddr()).do(http.MethodDelete, "/api/tunables/"+args[0], nil, nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: stored value removed\n", args[0])
	return nil
}
