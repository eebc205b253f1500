package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbirdio/updateengine/util"
)

func TestInitCommands(t *testing.T) {
	helpFlag := "-h"
	commandArgs := [][]string{{"root", helpFlag}}
	for _, command := range rootCmd.Commands() {
		commandArgs = append(commandArgs, []string{command.Name(), command.Name(), helpFlag})
		for _, subcommand := range command.Commands() {
			commandArgs = append(commandArgs, []string{command.Name() + " " + subcommand.Name(), command.Name(), subcommand.Name(), helpFlag})
		}
	}

	for _, args := range commandArgs {
		t.Run(fmt.Sprintf("Testing Command %s", args[0]), func(t *testing.T) {
			defer func() {
				err := recover()
				if err != nil {
					t.Fatalf("got an panic error while running the command: %s -h. Error: %s", args[0], err)
				}
			}()

			rootCmd.SetArgs(args[1:])
			rootCmd.SetOut(io.Discard)
			if err := rootCmd.Execute(); err != nil {
				t.Errorf("expected no error while running %s command, got %v", args[0], err)
				return
			}
		})
	}
}

func TestConfigInput_OnlyChangedFlags(t *testing.T) {
	input := configInput(rootCmd)
	assert.Nil(t, input.MetricsPort)
	assert.Nil(t, input.VersionURL)

	t.Setenv("UE_METRICS_PORT", "9100")
	util.SetFlagsFromEnvVars(rootCmd)
	t.Cleanup(func() {
		rootCmd.Flag(metricsPortFlag).Changed = false
		metricsPort = 0
	})

	input = configInput(rootCmd)
	require.NotNil(t, input.MetricsPort)
	assert.Equal(t, 9100, *input.MetricsPort)
	assert.Nil(t, input.VersionURL)
	assert.Nil(t, input.OfficialBuild)
}

func TestEvaluateCommand_PrintsDecision(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	policyPath := filepath.Join(dir, "device_policy.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"OSVersion": "1.0.0"}`), 0600))
	require.NoError(t, os.WriteFile(policyPath, []byte("minimum_version: 2.0.0\n"), 0600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"evaluate", "UpdateCanBeApplied",
		"--" + configFlag, cfgPath,
		"--" + devicePolicyFlag, policyPath,
		"--" + stateFileFlag, filepath.Join(dir, "state.json"),
		"--" + logFileFlag, "console",
	})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		devicePolicyPath = ""
		stateFilePath = ""
	})

	require.NoError(t, rootCmd.Execute())

	var result struct {
		Kind   string `json:"kind"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "UpdateCanBeApplied", result.Kind)
	assert.Equal(t, "Succeeded", result.Status)
}

func TestParseServiceEnvVars(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", input: nil, want: map[string]string{}},
		{name: "pairs", input: []string{"UE_LOG_LEVEL=debug", " KEY = value "}, want: map[string]string{"UE_LOG_LEVEL": "debug", "KEY": "value"}},
		{name: "value with equals", input: []string{"A=b=c"}, want: map[string]string{"A": "b=c"}},
		{name: "missing value", input: []string{"NOVALUE"}, wantErr: true},
		{name: "empty key", input: []string{"=value"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseServiceEnvVars(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildServiceArguments(t *testing.T) {
	args := buildServiceArguments(rootCmd)
	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, []string{"service", "run"}, args[:2])
	assert.Contains(t, args, "--"+configFlag)
	assert.NotContains(t, args, "--"+metricsPortFlag)
}
