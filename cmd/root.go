package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	envFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ctrlnotify",
	Short: "Event-driven notification dispatcher",
	Long: `ctrlnotify turns application events into notifications. Each registered
configuration binds an event type to a channel (email, slack, webhook) and a
message template; duplicate messages are suppressed by a per-config
deduplication policy.

Get started:
  ctrlnotify onboard      Interactive setup wizard
  ctrlnotify doctor       Verify channels, templates and storage
  ctrlnotify process      Dispatch one event or a batch file
  ctrlnotify serve        Start the gateway daemon with REST API
  ctrlnotify templates    List, show and render message templates
  ctrlnotify ui           Launch the terminal UI`,
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
		"config file (default: ~/.ctrlnotify/config.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded before the config (CTRLNOTIFY_* overrides)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		onboardCmd,
		processCmd,
		serveCmd,
		registryCmd,
		templatesCmd,
		uiCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not load env file", "file", envFile, "error", err)
		}
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
