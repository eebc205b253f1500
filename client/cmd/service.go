//go:build !ios && !android

package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the update engine system service",
}

var (
	serviceName    string
	serviceEnvVars []string
)

// program runs the daemon under the service manager.
type program struct {
	ctx    context.Context
	cancel context.CancelFunc
	cmd    *cobra.Command
	done   chan error
}

func init() {
	defaultServiceName := "updateengine"
	if runtime.GOOS == "windows" {
		defaultServiceName = "UpdateEngine"
	}

	serviceCmd.AddCommand(serviceRunCmd, startCmd, stopCmd, restartCmd, svcStatusCmd, installCmd, uninstallCmd)

	rootCmd.PersistentFlags().StringVarP(&serviceName, "service", "s", defaultServiceName, "Update engine system service name")
	serviceEnvDesc := `Sets extra environment variables for the service. ` +
		`You can specify a comma-separated list of KEY=VALUE pairs. ` +
		`E.g. --service-env UE_LOG_LEVEL=debug,CUSTOM_VAR=value`

	installCmd.Flags().StringSliceVar(&serviceEnvVars, "service-env", nil, serviceEnvDesc)

	rootCmd.AddCommand(serviceCmd)
}

func newProgram(ctx context.Context, cancel context.CancelFunc, cmd *cobra.Command) *program {
	return &program{ctx: ctx, cancel: cancel, cmd: cmd}
}

func (p *program) Start(service.Service) error {
	// Start should not block. Do the actual work async.
	log.Info("starting service")
	p.done = make(chan error, 1)
	go func() {
		p.done <- runDaemon(p.ctx, p.cmd)
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	p.cancel()
	if p.done == nil {
		return nil
	}

	select {
	case err := <-p.done:
		return err
	case <-time.After(shutdownTimeout + time.Second):
		return fmt.Errorf("daemon did not stop within %s", shutdownTimeout)
	}
}

func newSVCConfig() (*service.Config, error) {
	config := &service.Config{
		Name:        serviceName,
		DisplayName: "Update Engine",
		Description: "Decides when this device checks for, downloads and applies updates",
		Option:      make(service.KeyValue),
		EnvVars:     make(map[string]string),
	}

	if len(serviceEnvVars) > 0 {
		extraEnvs, err := parseServiceEnvVars(serviceEnvVars)
		if err != nil {
			return nil, fmt.Errorf("parse service environment variables: %w", err)
		}
		config.EnvVars = extraEnvs
	}

	if runtime.GOOS == "linux" {
		config.EnvVars["SYSTEMD_UNIT"] = serviceName
	}

	return config, nil
}

func newSVC(prg *program, conf *service.Config) (service.Service, error) {
	return service.New(prg, conf)
}

func parseServiceEnvVars(envVars []string) (map[string]string, error) {
	envMap := make(map[string]string)

	for _, env := range envVars {
		if env == "" {
			continue
		}

		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid environment variable format: %s (expected KEY=VALUE)", env)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if key == "" {
			return nil, fmt.Errorf("empty environment variable key in: %s", env)
		}

		envMap[key] = value
	}

	return envMap, nil
}
