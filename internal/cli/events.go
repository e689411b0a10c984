package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/clusterplug/clusterplug/internal/domain"
)

func init() {
	eventsCmd.Flags().StringVar(&eventsKind, "kind", "", "Only show events of this kind (e.g. policy_changed)")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Maximum number of events")
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 0, "Only show events newer than this (e.g. 10m)")
	rootCmd.AddCommand(eventsCmd)
}

var (
	eventsKind  string
	eventsLimit int
	eventsSince time.Duration
)

var eventsCmd = &cobra.Command{
	Use:   "events [ID]",
	Short: "Show the controller event journal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	client := newAPIClient(daemonAddr())
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		var e domain.Event
		if err := client.get("/api/events/"+url.PathEscape(args[0]), nil, &e); err != nil {
			return err
		}
		fmt.Fprintf(out, "ID:      %s\nKind:    %s\nTime:    %s\nPolicy:  %s\n",
			e.ID, e.Kind, e.At.Local().Format(time.RFC3339Nano), e.Policy)
		if e.Detail != "" {
			fmt.Fprintf(out, "Detail:  %s\n", e.Detail)
		}
		return nil
	}

	q := url.Values{}
	if eventsKind != "" {
		q.Set("kind", eventsKind)
	}
	if eventsLimit > 0 {
		q.Set("limit", strconv.Itoa(eventsLimit))
	}
	if eventsSince > 0 {
		q.Set("since", time.Now().Add(-eventsSince).UTC().Format(time.RFC3339))
	}

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	if err := client.get("/api/events", q, &resp); err != nil {
		return err
	}
	if len(resp.Events) == 0 {
		fmt.Fprintln(out, "No events.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tPOLICY\tDETAIL\tID")
	for _, e := range resp.Events {
		policy := "-"
		if e.Policy.Big || e.Policy.Little {
			policy = e.Policy.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.At.Local().Format("15:04:05.000"), e.Kind, policy, e.Detail, shortID(e.ID))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
