package cmd

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netbirdio/updateengine/client/internal"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "runs the update engine daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		SetupCloseHandler(ctx, cancel)

		return runDaemon(ctx, cmd)
	},
}

// runDaemon starts the daemon and blocks until ctx is done.
func runDaemon(ctx context.Context, cmd *cobra.Command) error {
	config, err := loadConfig(cmd, logFile)
	if err != nil {
		return err
	}

	d, err := internal.NewDaemon(ctx, config, clockwork.NewRealClock())
	if err != nil {
		return err
	}

	if err := d.Start(ctx); err != nil {
		return err
	}
	handleForceUpdateSignal(ctx, d)

	<-ctx.Done()
	log.Info("stopping update engine")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}
