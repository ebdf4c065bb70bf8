package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/conceptlab/conceptci/internal/webapi"
	"github.com/conceptlab/conceptci/internal/webserver"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newServeCommand(app *appContext) *cobra.Command {
	var (
		port    int
		host    string
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the concept REST API",
		Long: `Start the concept REST API.

Read routes are public. POST, PUT and DELETE require HTTP basic auth with
AUTH_USERNAME and AUTH_PASSWORD; without them the API runs unauthenticated
and logs a warning. Creating or refreshing concepts needs an API key.

With --log-file (or server.log_file) logs are also written as JSON to a
file that rotates at 10 MB.`,
		Args: inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Server.Port
			}
			if !cmd.Flags().Changed("log-file") {
				logFile = cfg.LogFile()
			}
			logger, closeLog := serverLogger(cmd.ErrOrStderr(), logFile)
			defer closeLog()

			fetcher := app.fetcher(cfg)
			opts := webapi.Options{
				Store:      app.store(cfg),
				Quotes:     fetcher,
				Charts:     fetcher,
				Iterations: cfg.Bootstrap.Iterations,
				Confidence: cfg.Bootstrap.Confidence,
				Seed:       cfg.Seed(),
				Logger:     logger,
			}
			if searcher, err := app.searcher(cfg); err == nil {
				opts.Searcher = searcher
			} else {
				logger.Warn("concept search disabled", "error", err)
			}

			username, password := cfg.Credentials()
			srv, err := webserver.New(webserver.Config{
				Host:           host,
				Port:           port,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Username:       username,
				Password:       password,
				API:            opts,
				Logger:         logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", webserver.DefaultPort, "Port to listen on")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Address to bind")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotating file")
	return cmd
}

// serverLogger returns the default logger, or one that also writes JSON to
// a rotating file when path is set. The level follows the default logger.
func serverLogger(console io.Writer, path string) (*slog.Logger, func()) {
	if path == "" {
		return slog.Default(), func() {}
	}

	level := slog.LevelInfo
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		level = slog.LevelDebug
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	handler := slog.NewJSONHandler(io.MultiWriter(console, file), &slog.HandlerOptions{Level: level})
	return slog.New(handler), func() { _ = file.Close() }
}
