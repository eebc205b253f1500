package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/netbirdio/updateengine/client/internal"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/policy"
)

var evaluateTimeout time.Duration

type evaluateOutput struct {
	Kind   evaluation.Kind `json:"kind"`
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   evaluation.Data `json:"data,omitempty"`
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <kind>",
	Short: "answers a single decision and prints it as JSON",
	Long: "Answers a single decision against the current device state and prints the result as JSON. " +
		"Known kinds: " + string(policy.KindUpdateCheckAllowed) + ", " + string(policy.KindUpdateCanStart) +
		", " + string(policy.KindUpdateCanBeApplied) + ".",
	Args: cobra.ExactArgs(1),
	ValidArgs: []string{
		string(policy.KindUpdateCheckAllowed),
		string(policy.KindUpdateCanStart),
		string(policy.KindUpdateCanBeApplied),
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath := "console"
		if flagChanged(cmd, logFileFlag) {
			logPath = logFile
		}

		config, err := loadConfig(cmd, logPath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if evaluateTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, evaluateTimeout)
			defer cancel()
		}
		SetupCloseHandler(ctx, cancel)

		d, err := internal.NewDaemon(ctx, config, clockwork.NewRealClock())
		if err != nil {
			return err
		}
		d.StartProviders(ctx)
		defer func() {
			if err := d.Stop(context.Background()); err != nil {
				cmd.PrintErrf("failed to stop: %v\n", err)
			}
		}()

		kind := evaluation.Kind(args[0])
		status, data, err := d.Evaluate(ctx, kind)
		out := evaluateOutput{Kind: kind, Status: status.String(), Data: data}
		if err != nil {
			out.Error = err.Error()
		}

		bs, marshalErr := json.MarshalIndent(out, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("marshal result: %w", marshalErr)
		}
		cmd.SetOut(cmd.OutOrStdout())
		cmd.Println(string(bs))

		return err
	},
}

func init() {
	evaluateCmd.Flags().DurationVar(&evaluateTimeout, "timeout", 0, "Gives up waiting for the decision after this long, 0 waits for the decision timeout")
}
