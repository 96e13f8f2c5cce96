package main

import (
	"os"

	"github.com/spf13/cobra"
)

// ============================================================================
// Root command
// ============================================================================

var rootCmd = &cobra.Command{
	Use:   "staffchat",
	Short: "staffloop chat CLI",
	Long:  "Command-line client for staffloop chat.\nManage configuration, browse the directory, and chat interactively.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
