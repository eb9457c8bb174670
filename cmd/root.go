package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cedarkv/cedar/cmd/bench"
	"github.com/cedarkv/cedar/cmd/rdb"
	"github.com/cedarkv/cedar/cmd/serve"
	"github.com/cedarkv/cedar/cmd/util"
)

const (
	Version = "0.4.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cedar",
		Short: "in-memory key-value store",
		Long: fmt.Sprintf(`cedar (v%s)

An in-memory key-value store with typed values, adaptive value
encodings and point-in-time snapshots.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cedar",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cedar v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(rdb.RDBCommands)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("Path to a config file, all options fall back to CEDAR_<option> environment variables and built-in defaults"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
