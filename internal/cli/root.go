// Package cli implements the clusterplug command-line interface using Cobra.
// serve runs the daemon; every other command talks to its HTTP API.
package cli

import (
	goflag "flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "clusterplug",
	Short: "Adaptive big.LITTLE cluster hotplug",
	Long: `clusterplug keeps the big and little CPU clusters of a heterogeneous SoC
online only while the load needs them. It samples per-CPU idle time,
votes on whether each cluster should stay up, and brings CPUs on or
offline through the kernel hotplug interface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	apiAddr    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $CLUSTERPLUG_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "Daemon API address host:port (default from config)")

	rootCmd.PersistentFlags().AddFlagSet(klogFlags())
}

// klogFlags exposes klog's -v, -logtostderr and friends as pflags.
func klogFlags() *pflag.FlagSet {
	gfs := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(gfs)
	fs := pflag.NewFlagSet("klog", pflag.ExitOnError)
	fs.AddGoFlagSet(gfs)
	return fs
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	daemon.Version = version
	rootCmd.Version = version

	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		klog.Flush()
		os.Exit(1)
	}
}

// daemonAddr resolves the API address from --addr or the config file.
func daemonAddr() string {
	if apiAddr != "" {
		return apiAddr
	}
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		cfg = daemon.DefaultConfig()
	}
	return net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
}

// applyVerbosity raises klog's -v from the config unless set on the
// command line.
func applyVerbosity(cmd *cobra.Command, level int) {
	if level <= 0 {
		return
	}
	if f := cmd.Flags().Lookup("v"); f != nil && !f.Changed {
		_ = f.Value.Set(strconv.Itoa(level))
	}
}
