package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "relay",
	Short:        "WhatsApp Cloud API webhook relay",
	Long:         "Receives WhatsApp webhooks, runs per-number automations and sends the replies.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
