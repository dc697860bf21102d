package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var actionsCmd = &cobra.Command{
	Use:         "actions",
	Short:       "Print the configured punch actions",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noDBAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		for i, a := range Cfg.Actions {
			fmt.Printf("%d) %s\n", i+1, a)
		}
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
}
