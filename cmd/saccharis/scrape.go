package main

import (
	"github.com/spf13/cobra"
)

var scrapeCommand = &cobra.Command{
	Use:   "scrape [FAMILY...]",
	Short: "Download the catalog members and sequences of families without running the tools",
	Long: `Scrapes each family from CAZy and downloads its sequences from NCBI into the output folder.
A later 'saccharis run' with the same mode and domains reuses the downloaded data.`,
	RunE: runScrapeCmd,
}

var scrapeFlags acquireFlags

func init() {
	scrapeFlags.register(scrapeCommand)
	rootCmd.AddCommand(scrapeCommand)
}

func runScrapeCmd(cmd *cobra.Command, args []string) error {
	return executeBatch(cmd, args, &scrapeFlags, true)
}
