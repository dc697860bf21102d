package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facepunch/internal/export"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the attendance log to CSV, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExport(cmd.Context(), exportOut)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", export.DefaultFile, "Output CSV file")
	rootCmd.AddCommand(exportCmd)
}

func runExport(ctx context.Context, path string) error {
	total, err := DB.Count(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("📤 Exporting"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	sink := export.NewCSVSink(f)
	sink.OnRow = func() { bar.Add(1) }

	n, err := DB.Export(ctx, sink)
	if err != nil {
		return err
	}
	if err := sink.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	bar.Finish()

	fmt.Fprintln(os.Stderr)
	fmt.Printf("✅ Exported %d records to %s\n", n, path)
	return nil
}
