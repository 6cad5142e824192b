package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saccharis/SACCHARIS-2/internal/catalog"
)

var familiesCommand = &cobra.Command{
	Use:   "families [CATEGORY]",
	Short: "List family categories, or the families of one category",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFamiliesCmd,
}

func init() {
	rootCmd.AddCommand(familiesCommand)
}

func runFamiliesCmd(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		_, _ = fmt.Fprintln(out, "Categories (use with 'saccharis run --category'):")
		for _, name := range catalog.Categories() {
			_, _ = fmt.Fprintf(out, "  %s\n", name)
		}
		return nil
	}

	fams, err := catalog.CategoryFamilies(args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, strings.Join(fams, " "))
	return nil
}
