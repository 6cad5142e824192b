// Package main provides the entry point for the SACCHARIS command line tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saccharis/SACCHARIS-2/internal/config"
	"github.com/saccharis/SACCHARIS-2/internal/pipeline"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "saccharis",
	Short: "SACCHARIS CAZyme family phylogeny pipeline",
	Long: `SACCHARIS downloads the members of CAZy families, merges them with user sequences
and runs the extraction, alignment, model selection and tree building tools on the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), verbose))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed debug information")
}

func main() {
	// Load .env files if they exist
	config.LoadDotEnv(config.Home())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := pipeline.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		stop()
		os.Exit(1)
	}
}
