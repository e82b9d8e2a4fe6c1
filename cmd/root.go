package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
	output  string
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Browse DevOps organisation scans, containers and permission graphs",
	Long: `atlas keeps normalized snapshots of scanned DevOps organisations in a
local store and answers questions about them: which pipelines can use a
service connection, which resources are shared across projects, which
critical containers a pipeline reaches.

Get started:
  atlas ingest scan.yaml        Load a snapshot produced by the scan job
  atlas orgs list               Show ingested organisations
  atlas resources --org myorg   List protected resources
  atlas graph --org myorg       Print the permission graph
  atlas containers create       Group resources into a logic container
  atlas serve                   Start the local REST API for the dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.atlas/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "",
		"output format: table|json|yaml (default from display.output)")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		ingestCmd,
		orgsCmd,
		projectsCmd,
		resourcesCmd,
		pipelinesCmd,
		buildsCmd,
		graphCmd,
		containersCmd,
		commitsCmd,
		committersCmd,
		reposCmd,
		settingsCmd,
		serveCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
