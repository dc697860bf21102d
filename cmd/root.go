package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facepunch/internal/config"
	"github.com/andresmejia3/facepunch/internal/gallery"
	"github.com/andresmejia3/facepunch/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// noDBAnnotation marks commands that run without a database connection.
const noDBAnnotation = "facepunch/no-db"

var (
	// DB holds the identity table and the attendance ledger, shared by subcommands
	DB *store.Store
	// Gallery holds the enrolled face signatures
	Gallery *gallery.Store
	// Cfg is the resolved configuration
	Cfg *config.Config

	cfgFile  string
	dbURL    string
	facesDir string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facepunch",
	Short:   "Face recognition attendance clock",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		var err error
		Cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbURL != "" {
			Cfg.DatabaseURL = dbURL
		}
		if facesDir != "" {
			Cfg.FacesDir = facesDir
		}
		if err := Cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if cmd.Annotations[noDBAnnotation] == "true" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), Cfg.DSN())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		Gallery = gallery.New(Cfg.FacesDir, DB)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: from config, POSTGRES_* or postgres://localhost:5432/facepunch)")
	rootCmd.PersistentFlags().StringVar(&facesDir, "faces", "", "Directory holding enrolled face signatures (default: faces)")
}
