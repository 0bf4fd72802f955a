package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duskdb/duskdb/cmd/serve"
	"github.com/duskdb/duskdb/internal/engine"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "duskdb",
		Short: "in-memory key-value data engine",
		Long: `DuskDB

An in-memory, network-addressable key-value data engine speaking the RESP
protocol, with per-key expiration, a write-ahead log and point-in-time
snapshots for durability.`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of DuskDB",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("DuskDB %s\n", engine.Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
