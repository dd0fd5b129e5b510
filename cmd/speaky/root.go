package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-speaky/internal/config"
	"github.com/teslashibe/go-speaky/internal/log"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Loaded before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "speaky",
	Short: "Voice assistant for an Ethereum wallet",
	Long: `speaky - talk to your Ethereum wallet.

A realtime speech model listens, answers and calls wallet tools: check the
balance, check the connection, send ETH to an address or ENS name, show a
notification.

Commands:
  serve   Credential broker plus operator dashboard with an embedded assistant
  talk    Headless assistant in the terminal
  tools   Print the tool definitions advertised to the model

Configuration comes from defaults, an optional YAML file (--config) and the
environment (SPEAKY_*, plus OPENAI_API_KEY, ETH_RPC_URL, WALLET_PRIVATE_KEY).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		log.Init(loaded.LogLevel)
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(toolsCmd)
}
