package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/facepunch/internal/utils"
	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <unique_id> <name>",
	Short: "Change the display name of an enrolled employee",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runRename(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(ctx context.Context, uniqueID, name string) {
	// The signature is kept; only the name changes
	if err := Gallery.Rename(ctx, uniqueID, name); err != nil {
		utils.Die("Failed to rename employee", err, nil)
	}

	fmt.Printf("✅ %s renamed to '%s'\n", uniqueID, name)
}
