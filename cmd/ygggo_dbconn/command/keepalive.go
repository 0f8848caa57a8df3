package command

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	dbc "github.com/yggai/ygggo_dbconn"
)

func newKeepAliveCommand(dc *DBCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive",
		Short: "Hold the connection open, probing it until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := dc.open(ctx)
			if err != nil {
				return err
			}
			if err := db.WithConnection(ctx, func(dbc.Connection) error { return nil }); err != nil {
				return err
			}
			dc.logger.Info("connection ready, waiting for signal")

			<-ctx.Done()
			dc.logger.LogAttrs(context.Background(), slog.LevelInfo, "shutting down",
				slog.String("reason", context.Cause(ctx).Error()),
			)
			return nil
		},
	}
}
