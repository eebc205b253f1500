//go:build !windows

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal"
)

// handleForceUpdateSignal starts a non-interactive update check on SIGUSR1.
func handleForceUpdateSignal(ctx context.Context, d *internal.Daemon) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if err := d.ForceUpdate(false); err != nil {
					log.Warnf("ignoring forced update: %v", err)
				}
			}
		}
	}()
}
