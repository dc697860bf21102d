package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facepunch/internal/style"
	"github.com/spf13/cobra"
)

var (
	enrollImage  string
	enrollCamera bool
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <unique_id> <name>",
	Short: "Enroll an employee's face",
	Long:  "Extracts a face signature from an image or a camera frame and stores it under the employee id. Enrolling an existing id replaces its signature.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd.Context(), args[0], args[1])
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollImage, "image", "i", "", "Image file with the employee's face")
	enrollCmd.Flags().BoolVarP(&enrollCamera, "camera", "c", false, "Capture the face from the camera")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, uniqueID, name string) error {
	src, err := imageSource(enrollImage, enrollCamera)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting face extractor...")
	eng, err := startEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	id, err := eng.enroller.EnrollFromSource(ctx, src, uniqueID, name)
	if err != nil {
		fmt.Fprintln(os.Stderr, style.ErrorPrefix, style.Error.Render(describeError(err)))
		return err
	}

	fmt.Println(style.SuccessPrefix, style.Success.Render(fmt.Sprintf("%s enrolled as %s", id.DisplayName, id.UniqueID)))
	return nil
}
