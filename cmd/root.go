package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftkv/driftkv/cmd/kv"
	"github.com/driftkv/driftkv/cmd/serve"
)

const (
	Version = "0.1.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "driftkv",
		Short: "tiered, replicated key-value store",
		Long: fmt.Sprintf(`driftkv (v%s)

A distributed, tiered key-value store built on merge-semilattice data
types — writes never block on coordination, and replicas reconcile
through gossip instead of consensus.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of driftkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("driftkv v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
