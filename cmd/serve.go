package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/server"
)

var (
	servePort int
	serveMock bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initService(ctx, serveMock)
		if err != nil {
			return err
		}
		defer env.Close()

		// Background maintenance: expired task snapshots and stale temp files.
		sweep := time.Duration(cfg.Tasks.SweepIntervalSecs) * time.Second
		env.Registry.StartSweeper(ctx, sweep)
		env.Temp.StartJanitor(ctx, sweep)

		handler := server.New(env.Service, server.Options{
			Version:        version,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxUploadBytes: cfg.Upload.MaxSizeBytes,
		}).Handler()

		port := resolvePort(servePort, cfg.Server.Port)
		addr := fmt.Sprintf(":%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return eris.Wrapf(err, "listen on %s", addr)
		}

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("mock", serveMock))
		return startServer(ctx, &http.Server{Handler: handler}, ln)
	},
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort > 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves ln until ctx is cancelled, then shuts down with a fresh
// deadline so in-flight requests can finish.
func startServer(ctx context.Context, srv *http.Server, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		return eris.Wrap(err, "server listen")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	<-serveErr
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMock, "mock", false, "serve canned extractions without calling the model")
	rootCmd.AddCommand(serveCmd)
}
