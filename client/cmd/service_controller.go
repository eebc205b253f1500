//go:build !ios && !android

package cmd

import (
	"context"
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

var serviceRunCmd = &cobra.Command{
	Use:   "run",
	Short: "runs the update engine under the service manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s, err := newServiceFor(cmd, newProgram(ctx, cancel, cmd))
		if err != nil {
			return err
		}

		if err := s.Run(); err != nil {
			return fmt.Errorf("run service: %w", err)
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "starts the update engine service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return controlService(cmd, "started", service.Service.Start)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stops the update engine service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return controlService(cmd, "stopped", service.Service.Stop)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "restarts the update engine service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return controlService(cmd, "restarted", service.Service.Restart)
	},
}

var svcStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "shows the update engine service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s, err := newServiceFor(cmd, newProgram(ctx, cancel, cmd))
		if err != nil {
			return err
		}

		status, err := s.Status()
		if err != nil {
			return fmt.Errorf("get service status: %w", err)
		}

		cmd.Printf("Update engine service status: %s\n", statusString(status))
		return nil
	},
}

func newServiceFor(cmd *cobra.Command, prg *program) (service.Service, error) {
	setupServiceCommand(cmd)

	cfg, err := newSVCConfig()
	if err != nil {
		return nil, fmt.Errorf("create service config: %w", err)
	}
	return newSVC(prg, cfg)
}

func controlService(cmd *cobra.Command, done string, action func(service.Service) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := newServiceFor(cmd, newProgram(ctx, cancel, cmd))
	if err != nil {
		return err
	}

	if err := action(s); err != nil {
		return err
	}
	cmd.Printf("Update engine service has been %s\n", done)
	return nil
}

func statusString(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
