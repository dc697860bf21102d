package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/andresmejia3/facepunch/internal/style"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	punchAction    string
	punchImage     string
	punchCamera    bool
	punchThreshold float64
)

var punchCmd = &cobra.Command{
	Use:   "punch",
	Short: "Record an attendance punch",
	Long:  "Identifies the face in the image or camera frame and records the chosen action. Without --action the configured actions are offered as a menu.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		threshold := Cfg.Threshold
		if cmd.Flags().Changed("threshold") {
			threshold = punchThreshold
		}
		return runPunch(cmd.Context(), threshold)
	},
}

func init() {
	punchCmd.Flags().StringVarP(&punchAction, "action", "a", "", "Action label to record")
	punchCmd.Flags().StringVarP(&punchImage, "image", "i", "", "Image file with the face")
	punchCmd.Flags().BoolVarP(&punchCamera, "camera", "c", false, "Capture the face from the camera")
	punchCmd.Flags().Float64VarP(&punchThreshold, "threshold", "t", 0.5, "Maximum match distance (default: from config)")
	rootCmd.AddCommand(punchCmd)
}

func runPunch(ctx context.Context, threshold float64) error {
	src, err := imageSource(punchImage, punchCamera)
	if err != nil {
		return err
	}

	action := punchAction
	if action == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("--action is required when stdin is not a terminal")
		}
		action, err = chooseAction(bufio.NewReader(os.Stdin), os.Stdout, Cfg.Actions)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting face extractor...")
	eng, err := startEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.recorder.OnState = statusPrinter(os.Stderr)
	ev, err := eng.recorder.RecordPunchFromSource(ctx, src, action, threshold)
	if err != nil {
		return err
	}

	fmt.Println(style.SuccessPrefix, style.Success.Render(fmt.Sprintf("%s: %s", ev.DisplayName, ev.Action)))
	fmt.Println(style.Dim.Render(fmt.Sprintf("%s  confidence %.2f", ev.Timestamp, ev.Confidence)))
	return nil
}

// chooseAction prints a numbered menu and reads the operator's choice.
func chooseAction(r *bufio.Reader, w io.Writer, actions []string) (string, error) {
	for i, a := range actions {
		fmt.Fprintf(w, "  %d) %s\n", i+1, a)
	}
	fmt.Fprint(w, "Action: ")

	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("no action chosen: %w", err)
	}
	line = strings.TrimSpace(line)
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(actions) {
			return "", fmt.Errorf("choose a number between 1 and %d", len(actions))
		}
		return actions[n-1], nil
	}
	// A typed label is validated by the recorder
	return line, nil
}
