package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saccharis/SACCHARIS-2/internal/merge"
)

var renameCommand = &cobra.Command{
	Use:   "rename INPUT [OUTPUT]",
	Short: "Give every sequence of a FASTA file a SACCHARIS id",
	Long: `Replaces the id of every record with U000000000, U000000001, ... and keeps the old
header as the description. OUTPUT defaults to <name>_UserFormat.fasta next to INPUT.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRenameCmd,
}

var (
	renameStart  int
	renameFolder string
)

func init() {
	renameCommand.Flags().IntVar(&renameStart, "start", 0, "First id number to assign")
	renameCommand.Flags().StringVar(&renameFolder, "folder", "", "Folder for the default output file (default: the input's folder)")
	rootCmd.AddCommand(renameCommand)
}

func runRenameCmd(cmd *cobra.Command, args []string) error {
	if renameStart < 0 {
		return fmt.Errorf("--start must not be negative")
	}
	in := args[0]
	out := merge.RenamedPath(in, renameFolder)
	if len(args) == 2 {
		out = args[1]
	}

	next, err := merge.RenameFile(in, out, renameStart)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Renamed %d sequences: %s -> %s\n", next-renameStart, in, out)
	return nil
}
