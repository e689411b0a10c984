package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/clusterplug/clusterplug/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveAlgorithm, "algorithm", "", "Decision algorithm: voting or hysteresis (overrides config)")
	serveCmd.Flags().StringVar(&servePower, "power-source", "", "Suspend source: signal, fb or none (overrides config)")
	serveCmd.Flags().BoolVar(&serveEnable, "enable", false, "Start with the controller enabled")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost      string
	servePort      int
	serveAlgorithm string
	servePower     string
	serveEnable    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hotplug controller and its API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveAlgorithm != "" {
		cfg.Controller.Algorithm = serveAlgorithm
	}
	if servePower != "" {
		cfg.Power.Source = servePower
	}
	if serveEnable {
		cfg.Controller.Tunables.Enabled = true
	}
	applyVerbosity(cmd, cfg.Logging.Verbosity)

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(context.Background())
}
