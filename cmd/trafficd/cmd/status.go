package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexd/internal/metrics"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running trafficd controller's status",
	Long:  "Fetch a point-in-time snapshot from a running trafficd instance's /status endpoint and display it.",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "metrics-addr", metrics.DefaultListenAddr, "address of the running instance's metrics/status endpoint")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/status", statusAddr))
	if err != nil {
		return fmt.Errorf("trafficd status: %w", err)
	}
	defer resp.Body.Close()

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("trafficd status: parse response: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scheduler state:     %s\n", snap.SchedulerState)
	fmt.Fprintf(w, "Green directions:    %d\n", snap.GreenCount)
	fmt.Fprintf(w, "Bridge session:      %s (active=%t)\n", snap.BridgeSessionState, snap.BridgeSessionActive)
	fmt.Fprintf(w, "Jam engaged:         %t\n", snap.JamEngaged)
	fmt.Fprintf(w, "Priority override:   %t\n", snap.PreemptionActive)
	fmt.Fprintf(w, "Sessions completed:  %d\n", snap.SessionsCompleted)
	fmt.Fprintf(w, "Sessions cancelled:  %d\n", snap.SessionsCancelled)
	fmt.Fprintf(w, "Ticks:               %d\n", snap.TickCount)
	fmt.Fprintf(w, "Publications:        %d\n", snap.Publications)

	if len(snap.Sessions) > 0 {
		fmt.Fprintln(w, "\nRecent sessions:")
		for _, s := range snap.Sessions {
			fmt.Fprintf(w, "  %s  %s -> %s  %s\n", s.SessionID, s.StartedAt.Format(time.RFC3339), s.EndedAt.Format(time.RFC3339), s.Outcome)
		}
	}

	return nil
}
