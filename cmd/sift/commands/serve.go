package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/siftlab/sift/config"
	"github.com/siftlab/sift/errors"
	"github.com/siftlab/sift/logger"
	"github.com/siftlab/sift/server"
)

// ServeCmd starts the sift API server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the sift API server",
	Long: `Launch the sift API server. Datasets found in the database are loaded
into memory and wired to the analysis engine; lineage events stream to
connected WebSocket clients.`,
	RunE: runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(serveDBPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	srv, err := server.NewSiftServer(database, cfg, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	port := servePort
	if port == 0 {
		port = cfg.Server.Port
	}
	if port == 0 {
		port = config.DefaultServerPort
	}

	// Shut down cleanly on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Logger.Infow("Received signal, shutting down", "signal", sig.String())
		if err := srv.Stop(); err != nil {
			logger.Logger.Errorw("Shutdown error", "error", err)
		}
	}()

	return srv.Start(port)
}
