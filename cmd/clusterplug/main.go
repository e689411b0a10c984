// Package main is the single-binary entrypoint for clusterplug, the
// big.LITTLE cluster hotplug daemon and its control CLI.
package main

import "github.com/clusterplug/clusterplug/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
