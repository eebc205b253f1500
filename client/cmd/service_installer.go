//go:build !ios && !android

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/netbirdio/updateengine/util"
)

// Common service command setup
func setupServiceCommand(cmd *cobra.Command) {
	util.SetFlagsFromEnvVars(rootCmd)
	util.SetFlagsFromEnvVars(serviceCmd)
	cmd.SetOut(cmd.OutOrStdout())
}

// Build service arguments for install
func buildServiceArguments(cmd *cobra.Command) []string {
	args := []string{
		"service",
		"run",
		"--" + logLevelFlag,
		logLevel,
		"--" + configFlag,
		configPath,
		"--" + logFileFlag,
		logFile,
		"--service",
		serviceName,
	}

	if devicePolicyPath != "" {
		args = append(args, "--"+devicePolicyFlag, devicePolicyPath)
	}

	if stateFilePath != "" {
		args = append(args, "--"+stateFileFlag, stateFilePath)
	}

	if flagChanged(cmd, versionURLFlag) {
		args = append(args, "--"+versionURLFlag, versionURL)
	}

	if flagChanged(cmd, officialBuildFlag) {
		args = append(args, "--"+officialBuildFlag+"="+strconv.FormatBool(officialBuild))
	}

	if flagChanged(cmd, metricsPortFlag) {
		args = append(args, "--"+metricsPortFlag, strconv.Itoa(metricsPort))
	}

	return args
}

// Configure platform-specific service settings
func configurePlatformSpecificSettings(svcConfig *service.Config) {
	if runtime.GOOS == "linux" {
		// Respected only by systemd systems
		svcConfig.Dependencies = []string{"After=network.target syslog.target"}

		if logFile != "" && logFile != "console" {
			setStdLogPath := true
			dir := filepath.Dir(logFile)

			if _, err := os.Stat(dir); err != nil {
				if err = os.MkdirAll(dir, 0750); err != nil {
					setStdLogPath = false
				}
			}

			if setStdLogPath {
				svcConfig.Option["LogOutput"] = true
				svcConfig.Option["LogDirectory"] = dir
			}
		}
	}

	if runtime.GOOS == "windows" {
		svcConfig.Option["OnFailure"] = "restart"
	}
}

// Create fully configured service config for install
func createServiceConfigForInstall(cmd *cobra.Command) (*service.Config, error) {
	svcConfig, err := newSVCConfig()
	if err != nil {
		return nil, fmt.Errorf("create service config: %w", err)
	}

	svcConfig.Arguments = buildServiceArguments(cmd)
	configurePlatformSpecificSettings(svcConfig)

	return svcConfig, nil
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "installs the update engine service",
	RunE: func(cmd *cobra.Command, args []string) error {
		setupServiceCommand(cmd)

		svcConfig, err := createServiceConfigForInstall(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s, err := newSVC(newProgram(ctx, cancel, cmd), svcConfig)
		if err != nil {
			return err
		}

		if err := s.Install(); err != nil {
			return fmt.Errorf("install service: %w", err)
		}

		cmd.Println("Update engine service has been installed")
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "uninstalls the update engine service from system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s, err := newServiceFor(cmd, newProgram(ctx, cancel, cmd))
		if err != nil {
			return err
		}

		if err := s.Uninstall(); err != nil {
			return fmt.Errorf("uninstall service: %w", err)
		}

		cmd.Println("Update engine service has been uninstalled")
		return nil
	},
}
