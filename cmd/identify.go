package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facepunch/internal/capture"
	"github.com/spf13/cobra"
)

var identifyThreshold float64

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Check who is in an image without recording a punch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		threshold := Cfg.Threshold
		if cmd.Flags().Changed("threshold") {
			threshold = identifyThreshold
		}
		return runIdentify(cmd.Context(), args[0], threshold)
	},
}

func init() {
	identifyCmd.Flags().Float64VarP(&identifyThreshold, "threshold", "t", 0.5, "Maximum match distance (default: from config)")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(ctx context.Context, imagePath string, threshold float64) error {
	img, err := capture.FileSource{Path: imagePath}.Frame(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting face extractor...")
	eng, err := startEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	res, err := eng.recorder.Identify(ctx, img, threshold)
	if err != nil {
		fmt.Println("❌", describeError(err))
		return err
	}

	if !res.Matched {
		fmt.Printf("❌ No match found (closest distance %.3f, threshold %.2f).\n", res.Distance, threshold)
		return nil
	}

	id := res.Entry.Identity
	fmt.Printf("✅ Found Match: %s (ID: %s)\n", id.DisplayName, id.UniqueID)
	fmt.Printf("   distance %.3f, confidence %.2f\n", res.Distance, res.Confidence)
	return nil
}
