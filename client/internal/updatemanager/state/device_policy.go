package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// devicePolicyDocument is the on-disk layout of the device policy. Absent keys
// leave the matching variable unset.
type devicePolicyDocument struct {
	UpdateDisabled            *bool                 `yaml:"update_disabled"`
	TargetVersionPrefix       *string               `yaml:"target_version_prefix"`
	MinimumVersion            *string               `yaml:"minimum_version"`
	RollbackToTargetVersion   *string               `yaml:"rollback_to_target_version"`
	RollbackAllowedMilestones *int                  `yaml:"rollback_allowed_milestones"`
	ScatterFactor             *time.Duration        `yaml:"scatter_factor"`
	AllowedConnectionTypes    *[]ConnectionType     `yaml:"allowed_connection_types"`
	DisallowedTimeIntervals   *[]WeeklyTimeInterval `yaml:"disallowed_time_intervals"`
	ReleaseChannel            *string               `yaml:"release_channel"`
	ReleaseChannelDelegated   *bool                 `yaml:"release_channel_delegated"`
}

func (d *devicePolicyDocument) validate() error {
	if d.AllowedConnectionTypes != nil {
		for _, c := range *d.AllowedConnectionTypes {
			if !c.IsValid() {
				return fmt.Errorf("unknown connection type %q", c)
			}
		}
	}
	if d.ScatterFactor != nil && *d.ScatterFactor < 0 {
		return fmt.Errorf("negative scatter factor %s", *d.ScatterFactor)
	}
	if d.RollbackAllowedMilestones != nil && *d.RollbackAllowedMilestones < 0 {
		return fmt.Errorf("negative rollback allowed milestones %d", *d.RollbackAllowedMilestones)
	}
	return nil
}

// DevicePolicyFile serves the device policy from a YAML file and reloads it
// whenever the file changes. Every variable it exposes is async.
type DevicePolicyFile struct {
	path string

	policyIsLoaded            *variable.Copy[bool]
	updateDisabled            *variable.Copy[bool]
	targetVersionPrefix       *variable.Copy[string]
	minimumVersion            *variable.Copy[string]
	rollbackToTargetVersion   *variable.Copy[RollbackToTargetVersion]
	rollbackAllowedMilestones *variable.Copy[int]
	scatterFactor             *variable.Copy[time.Duration]
	allowedConnectionTypes    *variable.Copy[[]ConnectionType]
	disallowedTimeIntervals   *variable.Copy[[]WeeklyTimeInterval]
	releaseChannel            *variable.Copy[string]
	releaseChannelDelegated   *variable.Copy[bool]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ DevicePolicyProvider = (*DevicePolicyFile)(nil)

// NewDevicePolicyFile creates a provider for the policy at path. Nothing is
// read until Reload or Start is called.
func NewDevicePolicyFile(path string) *DevicePolicyFile {
	return &DevicePolicyFile{
		path:                      filepath.Clean(path),
		policyIsLoaded:            variable.NewCopyWithValue("policy_is_loaded", variable.ModeAsync, false),
		updateDisabled:            variable.NewCopy[bool]("update_disabled", variable.ModeAsync),
		targetVersionPrefix:       variable.NewCopy[string]("target_version_prefix", variable.ModeAsync),
		minimumVersion:            variable.NewCopy[string]("device_minimum_version", variable.ModeAsync),
		rollbackToTargetVersion:   variable.NewCopy[RollbackToTargetVersion]("rollback_to_target_version", variable.ModeAsync),
		rollbackAllowedMilestones: variable.NewCopy[int]("rollback_allowed_milestones", variable.ModeAsync),
		scatterFactor:             variable.NewCopy[time.Duration]("scatter_factor", variable.ModeAsync),
		allowedConnectionTypes:    variable.NewCopy[[]ConnectionType]("allowed_connection_types_for_update", variable.ModeAsync),
		disallowedTimeIntervals:   variable.NewCopy[[]WeeklyTimeInterval]("disallowed_time_intervals", variable.ModeAsync),
		releaseChannel:            variable.NewCopy[string]("release_channel", variable.ModeAsync),
		releaseChannelDelegated:   variable.NewCopy[bool]("release_channel_delegated", variable.ModeAsync),
	}
}

// Reload reads the policy file and publishes its values. A missing or invalid
// file clears every value and marks the policy as not loaded.
func (p *DevicePolicyFile) Reload() error {
	doc, err := p.read()
	if err != nil {
		p.apply(nil)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("device policy %s does not exist", p.path)
			return nil
		}
		return err
	}

	p.apply(doc)
	return nil
}

func (p *DevicePolicyFile) read() (*devicePolicyDocument, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read device policy: %w", err)
	}

	var doc devicePolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse device policy: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, fmt.Errorf("validate device policy: %w", err)
	}
	return &doc, nil
}

func (p *DevicePolicyFile) apply(doc *devicePolicyDocument) {
	loaded := doc != nil
	if doc == nil {
		doc = &devicePolicyDocument{}
	}

	var rollback *RollbackToTargetVersion
	if doc.RollbackToTargetVersion != nil {
		r := parseRollbackToTargetVersion(*doc.RollbackToTargetVersion)
		rollback = &r
	}

	setIfChanged(p.updateDisabled, doc.UpdateDisabled)
	setIfChanged(p.targetVersionPrefix, doc.TargetVersionPrefix)
	setIfChanged(p.minimumVersion, doc.MinimumVersion)
	setIfChanged(p.rollbackToTargetVersion, rollback)
	setIfChanged(p.rollbackAllowedMilestones, doc.RollbackAllowedMilestones)
	setIfChanged(p.scatterFactor, doc.ScatterFactor)
	setIfChanged(p.allowedConnectionTypes, doc.AllowedConnectionTypes)
	setIfChanged(p.disallowedTimeIntervals, doc.DisallowedTimeIntervals)
	setIfChanged(p.releaseChannel, doc.ReleaseChannel)
	setIfChanged(p.releaseChannelDelegated, doc.ReleaseChannelDelegated)
	setIfChanged(p.policyIsLoaded, &loaded)
}

// setIfChanged publishes value, or clears v when value is nil. Subscribers are
// only notified when the stored value actually changes.
func setIfChanged[T any](v *variable.Copy[T], value *T) {
	if value == nil {
		v.Unset()
		return
	}
	if current, ok := v.Get(); ok && reflect.DeepEqual(current, *value) {
		return
	}
	v.Set(*value)
}

// Start loads the policy and keeps watching the file until ctx is done or
// Stop is called.
func (p *DevicePolicyFile) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return errors.New("device policy watcher already started")
	}

	if err := p.Reload(); err != nil {
		log.Warnf("failed to load device policy: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Warnf("failed to close watcher: %v", closeErr)
		}
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.watch(ctx, watcher)

	return nil
}

// Stop ends watching and waits for the watcher goroutine.
func (p *DevicePolicyFile) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

func (p *DevicePolicyFile) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Warnf("failed to close watcher: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				log.Warn("device policy watcher closed unexpectedly")
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Debugf("device policy changed: %s", event.Op)
			if err := p.Reload(); err != nil {
				log.Warnf("failed to reload device policy: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				log.Warn("device policy watcher closed unexpectedly")
				return
			}
			log.Warnf("device policy watcher error: %v", err)
		}
	}
}

func (p *DevicePolicyFile) PolicyIsLoaded() variable.Variable[bool] { return p.policyIsLoaded }

func (p *DevicePolicyFile) UpdateDisabled() variable.Variable[bool] { return p.updateDisabled }

func (p *DevicePolicyFile) TargetVersionPrefix() variable.Variable[string] {
	return p.targetVersionPrefix
}

func (p *DevicePolicyFile) MinimumVersion() variable.Variable[string] { return p.minimumVersion }

func (p *DevicePolicyFile) RollbackToTargetVersion() variable.Variable[RollbackToTargetVersion] {
	return p.rollbackToTargetVersion
}

func (p *DevicePolicyFile) RollbackAllowedMilestones() variable.Variable[int] {
	return p.rollbackAllowedMilestones
}

func (p *DevicePolicyFile) ScatterFactor() variable.Variable[time.Duration] {
	return p.scatterFactor
}

func (p *DevicePolicyFile) AllowedConnectionTypes() variable.Variable[[]ConnectionType] {
	return p.allowedConnectionTypes
}

func (p *DevicePolicyFile) DisallowedTimeIntervals() variable.Variable[[]WeeklyTimeInterval] {
	return p.disallowedTimeIntervals
}

func (p *DevicePolicyFile) ReleaseChannel() variable.Variable[string] { return p.releaseChannel }

func (p *DevicePolicyFile) ReleaseChannelDelegated() variable.Variable[bool] {
	return p.releaseChannelDelegated
}
