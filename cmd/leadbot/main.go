package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/leadbot/internal/storage"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "leadbot",
	Short:         "WhatsApp lead qualification assistant",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(leadsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(tempBlockCmd)
	rootCmd.AddCommand(blockTimeCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(newListCmd("contacts", storage.ListContacts, "Manage the contacts the bot has replied to"))
	rootCmd.AddCommand(newListCmd("flagged", storage.ListFlagged, "Manage contacts whose messages raise alerts"))
	rootCmd.AddCommand(newListCmd("broadcast-numbers", storage.ListBroadcast, "Manage the template broadcast number list"))
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
