package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/dashboard"
	"github.com/drm-lab/urbanrisk/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard data server",
	Long:  "Loads the processed datasets and serves charts, selector options, map markers and downloads over HTTP. SIGHUP reloads the data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(dashboard.NewProvider(cfg.Data), cfg.Server)
		if _, err := srv.Reload(ctx); err != nil {
			return err
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go reloadOnSignal(ctx, srv, hup)

		return srv.ListenAndServe(ctx, cfg.Server.Port)
	},
}

// reloadOnSignal reloads the snapshot each time a signal arrives. A failed
// reload keeps the current snapshot.
func reloadOnSignal(ctx context.Context, srv *server.Server, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			snap, err := srv.Reload(ctx)
			if err != nil {
				zap.L().Error("snapshot reload failed, keeping current data", zap.Error(err))
				continue
			}
			zap.L().Info("snapshot reloaded",
				zap.Int("datasets", snap.Loaded()),
				zap.Strings("missing", snap.Missing()),
			)
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
