package cmd

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netbirdio/updateengine/client/internal"
	"github.com/netbirdio/updateengine/util"
)

const (
	configFlag                  = "config"
	logLevelFlag                = "log-level"
	logFileFlag                 = "log-file"
	devicePolicyFlag            = "device-policy"
	stateFileFlag               = "state-file"
	versionURLFlag              = "version-url"
	officialBuildFlag           = "official-build"
	metricsPortFlag             = "metrics-port"
	testUpdateCheckIntervalFlag = "test-update-check-interval"
)

var (
	defaultLogFile          string
	configPath              string
	logLevel                string
	logFile                 string
	devicePolicyPath        string
	stateFilePath           string
	versionURL              string
	officialBuild           bool
	metricsPort             int
	testUpdateCheckInterval time.Duration

	rootCmd = &cobra.Command{
		Use:          "updateengine",
		Short:        "Policy driven update decisions",
		Long:         "updateengine decides when this device may check for, download and apply updates.",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultLogFile = "/var/log/updateengine/updateengine.log"
	defaultConfigPath := internal.DefaultConfigPath
	if runtime.GOOS == "windows" {
		defaultLogFile = os.Getenv("PROGRAMDATA") + "\\UpdateEngine\\updateengine.log"
		defaultConfigPath = os.Getenv("PROGRAMDATA") + "\\UpdateEngine\\config.json"
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, configFlag, "c", defaultConfigPath, "Daemon config file location")
	rootCmd.PersistentFlags().StringVarP(&logLevel, logLevelFlag, "l", "info", "sets log level")
	rootCmd.PersistentFlags().StringVar(&logFile, logFileFlag, defaultLogFile, "sets log file path. If console is specified the log will be output to stdout")
	rootCmd.PersistentFlags().StringVar(&devicePolicyPath, devicePolicyFlag, "", "Device policy YAML file. Stored in the config file when set")
	rootCmd.PersistentFlags().StringVar(&stateFilePath, stateFileFlag, "", "File the updater bookkeeping is persisted to")
	rootCmd.PersistentFlags().StringVar(&versionURL, versionURLFlag, "", "URL publishing the latest version as plain text. Empty only logs allowed checks")
	rootCmd.PersistentFlags().BoolVar(&officialBuild, officialBuildFlag, false, "Treat this build as official, enabling periodic update checks")
	rootCmd.PersistentFlags().IntVar(&metricsPort, metricsPortFlag, 0, "Port to serve Prometheus metrics on, 0 disables metrics")
	rootCmd.PersistentFlags().DurationVar(&testUpdateCheckInterval, testUpdateCheckIntervalFlag, 0, "Fixed update check interval for testing, 0 keeps the regular schedule")

	rootCmd.AddCommand(runCmd, evaluateCmd, versionCmd)
}

// SetupCloseHandler handles SIGTERM signal and exits with success
func SetupCloseHandler(ctx context.Context, cancel context.CancelFunc) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		done := ctx.Done()
		select {
		case <-done:
		case <-termCh:
		}

		log.Info("shutdown signal received")
		cancel()
	}()
}

// configInput collects the flags the user set explicitly, so unset flags never
// override what the config file holds.
func configInput(cmd *cobra.Command) internal.ConfigInput {
	input := internal.ConfigInput{
		ConfigPath:       configPath,
		DevicePolicyPath: devicePolicyPath,
		StateFilePath:    stateFilePath,
	}

	if flagChanged(cmd, versionURLFlag) {
		input.VersionURL = &versionURL
	}
	if flagChanged(cmd, officialBuildFlag) {
		input.OfficialBuild = &officialBuild
	}
	if flagChanged(cmd, metricsPortFlag) {
		input.MetricsPort = &metricsPort
	}
	if flagChanged(cmd, testUpdateCheckIntervalFlag) {
		input.TestUpdateCheckInterval = &testUpdateCheckInterval
	}

	return input
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// loadConfig applies environment overrides, sets up logging and loads the
// config file, creating it when missing.
func loadConfig(cmd *cobra.Command, logPath string) (*internal.Config, error) {
	util.SetFlagsFromEnvVars(rootCmd)

	if err := util.InitLog(logLevel, logPath); err != nil {
		return nil, err
	}

	return internal.UpdateOrCreateConfig(cmd.Context(), configInput(cmd))
}
