package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facepunch/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the kiosk HTTP API",
	Long:  "Starts the face extractor and serves enrollment and punch endpoints until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		addr := Cfg.Listen
		if serveListen != "" {
			addr = serveListen
		}
		return runServe(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (default: from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)

	fmt.Fprintln(os.Stderr, "🚀 Starting face extractor...")
	eng, err := startEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Load the gallery up front so the first punch is not slowed down
	if err := eng.cache.Reload(); err != nil {
		return err
	}

	srv := server.New(eng.enroller, eng.recorder, DB, Cfg.Threshold)
	fmt.Fprintf(os.Stderr, "🌐 Listening on %s\n", addr)
	return srv.Run(ctx, addr)
}
