package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/facepunch/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled employees",
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) {
	identities, err := DB.ListIdentities(ctx)
	if err != nil {
		utils.Die("Failed to list identities", err, nil)
	}

	if len(identities) == 0 {
		fmt.Println("No employees enrolled.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSIGNATURE\tENROLLED")
		fmt.Fprintln(w, "--\t----\t---------\t--------")

		for _, id := range identities {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id.UniqueID, id.DisplayName, filepath.Base(id.FacePath), id.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		w.Flush()
	}

	// Signature files that the matcher will ignore
	rep, err := Gallery.Load()
	if err != nil {
		utils.Die("Failed to read the gallery", err, nil)
	}
	for _, sk := range rep.Skipped {
		fmt.Fprintf(os.Stderr, "⚠️  Skipped %s: %s\n", sk.Path, sk.Reason)
	}
}
