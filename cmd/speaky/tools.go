package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-speaky/pkg/assistant"
	"github.com/teslashibe/go-speaky/pkg/tools"
)

var toolsSession bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool definitions advertised to the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := tools.DefaultRegistry()

		var v any = registry.Definitions()
		if toolsSession {
			ev := assistant.SessionUpdate(tools.SystemInstructions(cfg.Wallet.DefaultRecipient), registry)
			v = ev.Payload
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsSession, "session", false, "print the full session.update payload instead")
}
