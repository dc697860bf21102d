package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facepunch/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every attendance record",
	Long:  "Irreversibly deletes the attendance log. Enrolled employees are kept. Asks for confirmation unless --yes is given.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !clearYes && !term.IsTerminal(int(os.Stdin.Fd())) {
			utils.Die("Refusing to clear without a terminal to confirm", fmt.Errorf("pass --yes to clear non-interactively"), nil)
		}
		if !clearYes && !confirm(bufio.NewReader(os.Stdin), os.Stdout, "⚠️  Are you sure you want to delete ALL attendance records?") {
			fmt.Println("Aborted.")
			return
		}

		fmt.Println("🗑️  Clearing attendance log...")
		if err := DB.ClearAll(cmd.Context()); err != nil {
			utils.Die("Failed to clear attendance log", err, nil)
		}
		fmt.Println("✨ Attendance log cleared.")
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
