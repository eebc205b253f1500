package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/statemanager"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// UpdaterState is the part of the updater bookkeeping that survives restarts.
type UpdaterState struct {
	LastCheckedTime               time.Time     `json:"last_checked_time"`
	ConsecutiveFailedUpdateChecks int           `json:"consecutive_failed_update_checks"`
	ServerDictatedPollInterval    time.Duration `json:"server_dictated_poll_interval"`
}

func (UpdaterState) Name() string {
	return "updater_state"
}

// UpdaterStore keeps the updater's counters and publishes them as variables.
// Writes go through the state manager, which flushes them to disk.
type UpdaterStore struct {
	clock   clockwork.Clock
	manager *statemanager.Manager

	mu sync.Mutex

	updaterStartedTime            variable.Variable[time.Time]
	lastCheckedTime               *variable.Copy[time.Time]
	consecutiveFailedUpdateChecks *variable.Copy[int]
	serverDictatedPollInterval    *variable.Copy[time.Duration]
	forcedUpdateRequested         *variable.Copy[UpdateRequestStatus]
	testUpdateCheckInterval       *variable.Copy[time.Duration]
}

var _ UpdaterProvider = (*UpdaterStore)(nil)

// NewUpdaterStore restores persisted counters from manager. A nil manager
// keeps everything in memory. A zero testInterval leaves the test override
// unset.
func NewUpdaterStore(clock clockwork.Clock, manager *statemanager.Manager, testInterval time.Duration) (*UpdaterStore, error) {
	s := &UpdaterStore{
		clock:                         clock,
		manager:                       manager,
		updaterStartedTime:            variable.NewConst("updater_started_time", clock.Now()),
		lastCheckedTime:               variable.NewCopy[time.Time]("last_checked_time", variable.ModeSync),
		consecutiveFailedUpdateChecks: variable.NewCopyWithValue("consecutive_failed_update_checks", variable.ModeSync, 0),
		serverDictatedPollInterval:    variable.NewCopyWithValue("server_dictated_poll_interval", variable.ModeSync, time.Duration(0)),
		forcedUpdateRequested:         variable.NewCopyWithValue("forced_update_requested", variable.ModeAsync, UpdateRequestNone),
		testUpdateCheckInterval:       variable.NewCopy[time.Duration]("test_update_check_interval", variable.ModeSync),
	}
	if testInterval > 0 {
		s.testUpdateCheckInterval.Set(testInterval)
	}

	manager.RegisterState(&UpdaterState{})
	if err := manager.LoadState(&UpdaterState{}); err != nil {
		return nil, fmt.Errorf("load updater state: %w", err)
	}

	if st, ok := manager.GetState(&UpdaterState{}).(*UpdaterState); ok && st != nil {
		s.publish(*st)
		log.Debugf("restored updater state: last check %s, %d consecutive failures",
			st.LastCheckedTime.Format(time.RFC3339), st.ConsecutiveFailedUpdateChecks)
	}

	return s, nil
}

func (s *UpdaterStore) publish(st UpdaterState) {
	if !st.LastCheckedTime.IsZero() {
		s.lastCheckedTime.Set(st.LastCheckedTime)
	}
	s.consecutiveFailedUpdateChecks.Set(st.ConsecutiveFailedUpdateChecks)
	s.serverDictatedPollInterval.Set(st.ServerDictatedPollInterval)
}

// RecordUpdateCheck stores the outcome of an update check performed now.
// A zero serverPollInterval clears a previously dictated interval.
func (s *UpdaterStore) RecordUpdateCheck(succeeded bool, serverPollInterval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures, _ := s.consecutiveFailedUpdateChecks.Get()
	if succeeded {
		failures = 0
	} else {
		failures++
	}

	st := UpdaterState{
		LastCheckedTime:               s.clock.Now(),
		ConsecutiveFailedUpdateChecks: failures,
		ServerDictatedPollInterval:    serverPollInterval,
	}
	s.publish(st)

	if err := s.manager.UpdateState(&st); err != nil {
		return fmt.Errorf("update updater state: %w", err)
	}
	return nil
}

// RequestForcedUpdate asks for an update check outside the schedule.
func (s *UpdaterStore) RequestForcedUpdate(interactive bool) {
	status := UpdateRequestPeriodic
	if interactive {
		status = UpdateRequestInteractive
	}
	log.Infof("forced update requested (%s)", status)
	setIfChanged(s.forcedUpdateRequested, &status)
}

// ClearForcedUpdate drops a pending forced update request.
func (s *UpdaterStore) ClearForcedUpdate() {
	status := UpdateRequestNone
	setIfChanged(s.forcedUpdateRequested, &status)
}

func (s *UpdaterStore) UpdaterStartedTime() variable.Variable[time.Time] {
	return s.updaterStartedTime
}

func (s *UpdaterStore) LastCheckedTime() variable.Variable[time.Time] {
	return s.lastCheckedTime
}

func (s *UpdaterStore) ConsecutiveFailedUpdateChecks() variable.Variable[int] {
	return s.consecutiveFailedUpdateChecks
}

func (s *UpdaterStore) ServerDictatedPollInterval() variable.Variable[time.Duration] {
	return s.serverDictatedPollInterval
}

func (s *UpdaterStore) ForcedUpdateRequested() variable.Variable[UpdateRequestStatus] {
	return s.forcedUpdateRequested
}

func (s *UpdaterStore) TestUpdateCheckInterval() variable.Variable[time.Duration] {
	return s.testUpdateCheckInterval
}
