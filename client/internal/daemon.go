package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	nberrors "github.com/netbirdio/updateengine/client/errors"
	"github.com/netbirdio/updateengine/client/internal/attempter"
	"github.com/netbirdio/updateengine/client/internal/statemanager"
	"github.com/netbirdio/updateengine/client/internal/updatemanager"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/policy"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/state"
	"github.com/netbirdio/updateengine/shared/metrics"
	"github.com/netbirdio/updateengine/version"
)

// Daemon wires the state providers, the policy engine and the update
// attempter together.
type Daemon struct {
	config *Config
	clock  clockwork.Clock

	devicePolicy *state.DevicePolicyFile
	network      *state.NetworkMonitor
	stateManager *statemanager.Manager
	updater      *state.UpdaterStore
	metrics      *metrics.Metrics
	engine       *updatemanager.UpdateManager
	attempter    *attempter.Attempter

	mu      sync.Mutex
	started bool
}

// NewDaemon builds every component from config. Nothing runs until Start or
// StartProviders is called.
func NewDaemon(ctx context.Context, config *Config, clock clockwork.Clock) (*Daemon, error) {
	d := &Daemon{
		config:       config,
		clock:        clock,
		devicePolicy: state.NewDevicePolicyFile(config.DevicePolicyPath),
		network:      state.NewNetworkMonitor(),
		stateManager: statemanager.New(config.StateFilePath, clock),
	}

	updater, err := state.NewUpdaterStore(clock, d.stateManager, config.TestUpdateCheckInterval)
	if err != nil {
		return nil, err
	}
	d.updater = updater

	st := &state.State{
		DevicePolicy: d.devicePolicy,
		System: state.NewSystemInfo(ctx, state.SystemOptions{
			OSVersion:      config.OSVersion,
			OfficialBuild:  config.OfficialBuild,
			OOBEEnabled:    config.OOBEEnabled,
			OOBEMarkerPath: config.OOBEMarkerPath,
		}),
		Time:    state.NewWallClock(clock),
		Network: d.network,
		Updater: updater,
		Random:  state.NewProcessRandom(),
	}

	var engineMetrics *updatemanager.Metrics
	if config.MetricsPort > 0 {
		d.metrics, err = metrics.NewServer(config.MetricsPort, "")
		if err != nil {
			return nil, fmt.Errorf("create metrics server: %w", err)
		}
		engineMetrics, err = updatemanager.NewMetrics(ctx, d.metrics.Meter)
		if err != nil {
			return nil, fmt.Errorf("create engine metrics: %w", err)
		}
	}

	d.engine = updatemanager.NewUpdateManager(clock, policy.Chains(st), config.EngineConfig(), engineMetrics)

	var checker attempter.Checker = attempter.LogChecker{}
	if config.VersionURL != "" {
		checker = attempter.NewVersionChecker(config.VersionURL, version.UpdateEngineVersion())
	}
	d.attempter = attempter.New(clock, d.engine, checker, updater)
	d.attempter.SetOnUpdateReadyListener(func(plan policy.InstallPlan) {
		log.Infof("update %s is ready to be installed (interactive: %t)", plan.Version, plan.Interactive)
	})

	return d, nil
}

// StartProviders loads the device policy and starts watching the inputs the
// policies read. Watch failures are logged: the policy then stays as loaded
// and the connection stays unknown.
func (d *Daemon) StartProviders(ctx context.Context) {
	if err := d.devicePolicy.Start(ctx); err != nil {
		log.Warnf("device policy changes will not be picked up: %v", err)
	}

	if err := d.network.Start(ctx); err != nil {
		log.Warnf("network monitor unavailable, connection type stays unknown: %v", err)
	}
}

// Start runs the providers, the periodic state save, the metrics server and
// the update loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("daemon already started")
	}

	d.StartProviders(ctx)
	d.stateManager.Start()
	if d.metrics != nil {
		d.metrics.Start()
	}
	d.attempter.Start(ctx)

	d.started = true
	log.Infof("update engine %s started", version.UpdateEngineVersion())
	return nil
}

// Evaluate answers a single decision of kind and returns its data with the
// result filled in.
func (d *Daemon) Evaluate(ctx context.Context, kind evaluation.Kind) (evaluation.EvalStatus, evaluation.Data, error) {
	data := policy.NewData(kind)
	if data == nil {
		return evaluation.Failed, nil, fmt.Errorf("%w: %s", updatemanager.ErrNoPolicyChain, kind)
	}

	status, err := d.engine.PolicyRequest(ctx, "cli", data)
	return status, data, err
}

// ForceUpdate asks for an update check outside the regular schedule.
func (d *Daemon) ForceUpdate(interactive bool) error {
	return d.attempter.ForceUpdate(interactive)
}

// Stop shuts everything down in reverse start order and flushes the state
// file. It is safe to call on a daemon that only started its providers.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var merr *multierror.Error

	d.attempter.Stop()
	d.engine.Stop()
	d.network.Stop()
	d.devicePolicy.Stop()

	if d.started {
		if err := d.stateManager.Stop(ctx); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("stop state manager: %w", err))
		}
		if d.metrics != nil {
			if err := d.metrics.Shutdown(ctx); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("shutdown metrics: %w", err))
			}
		}
	}
	d.started = false

	return nberrors.FormatErrorOrNil(merr)
}
