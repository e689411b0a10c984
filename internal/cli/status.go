package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clusterplug/clusterplug/internal/app/hotplug"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show controller state",
	RunE:  runStatus,
}

type statusView struct {
	hotplug.Status
	Version string   `json:"version"`
	CPUTemp *float64 `json:"cpu_temp_c"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	var st statusView
	if err := newAPIClient(daemonAddr()).get("/api/status", nil, &st); err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), st)
}

func printStatus(out io.Writer, st statusView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Version:\t%s\n", st.Version)
	fmt.Fprintf(w, "Enabled:\t%t\n", st.Enabled)
	fmt.Fprintf(w, "Suspended:\t%t\n", st.Suspended)
	fmt.Fprintf(w, "Algorithm:\t%s\n", st.Engine.Algorithm)
	fmt.Fprintf(w, "Policy:\t%s\n", st.Policy)
	fmt.Fprintf(w, "Big:\t%d/%d active\n", st.ActiveBig, st.Topology.BigUnits)
	fmt.Fprintf(w, "Little:\t%d/%d active\n", st.ActiveLittle, st.Topology.LittleUnits)
	switch st.Engine.Algorithm {
	case hotplug.AlgorithmVoting:
		fmt.Fprintf(w, "Votes:\tup %d, down %d, little engaged %t\n",
			st.Engine.VoteUp, st.Engine.VoteDown, st.Engine.LittleEngaged)
	case hotplug.AlgorithmHysteresis:
		fmt.Fprintf(w, "Grace:\t%d ticks\n", st.Engine.Grace)
	}
	fmt.Fprintf(w, "Load:\t%d loaded, %d unloaded of %d sampled\n",
		st.LastSample.Loaded, st.LastSample.Unloaded, st.LastSample.Sampled)
	fmt.Fprintf(w, "Ticks:\t%d\n", st.Ticks)
	if !st.LastTick.IsZero() {
		fmt.Fprintf(w, "Last tick:\t%s\n", st.LastTick.Format("15:04:05.000"))
	}
	if st.CPUTemp != nil && *st.CPUTemp > 0 {
		fmt.Fprintf(w, "CPU temp:\t%.1f°C\n", *st.CPUTemp)
	}
	return w.Flush()
}
