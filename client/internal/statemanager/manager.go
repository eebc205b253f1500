package statemanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/netbirdio/updateengine/util"
)

const (
	errStateNotRegistered = "state %s not registered"

	saveInterval = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// State is a named piece of bookkeeping persisted as one JSON object.
type State interface {
	Name() string
}

// rawState keeps an entry of the state file no registered type claims, so it
// survives a rewrite of the file.
type rawState struct {
	data json.RawMessage
}

func (r *rawState) Name() string {
	return ""
}

func (r *rawState) MarshalJSON() ([]byte, error) {
	return r.data, nil
}

// Manager keeps registered states in memory and flushes changed ones to a
// single JSON file, periodically and on Stop. A nil Manager is valid and keeps
// nothing.
type Manager struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	cancel context.CancelFunc
	done   chan struct{}

	filePath string
	// states to persist, keyed by name; a nil value deletes the entry
	states map[string]State
	// names changed since the last save
	dirty map[string]struct{}
	// concrete type of each registered state
	stateTypes map[string]reflect.Type
}

// New creates a Manager for the state file at filePath.
func New(filePath string, clock clockwork.Clock) *Manager {
	return &Manager{
		clock:      clock,
		filePath:   filePath,
		states:     make(map[string]State),
		dirty:      make(map[string]struct{}),
		stateTypes: make(map[string]reflect.Type),
	}
}

// Start starts the periodic save routine.
func (m *Manager) Start() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())
	m.done = make(chan struct{})

	go m.periodicStateSave(ctx)
}

// Stop ends the periodic save routine and persists pending changes.
func (m *Manager) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}
	}

	return m.PersistState(ctx)
}

// RegisterState registers the type of state without persisting anything.
// Pass an uninitialized pointer.
func (m *Manager) RegisterState(state State) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := state.Name()
	if _, exists := m.states[name]; !exists {
		m.states[name] = nil
	}
	m.stateTypes[name] = reflect.TypeOf(state).Elem()
}

// GetState returns the current value of the state with the name of state, or
// nil if there is none.
func (m *Manager) GetState(state State) State {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.states[state.Name()]
}

// UpdateState replaces a registered state and marks it for the next save.
func (m *Manager) UpdateState(state State) error {
	if m == nil {
		return nil
	}

	return m.setState(state.Name(), state)
}

func (m *Manager) setState(name string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.stateTypes[name]; !exists {
		return fmt.Errorf(errStateNotRegistered, name)
	}

	m.states[name] = state
	m.dirty[name] = struct{}{}

	return nil
}

func (m *Manager) periodicStateSave(ctx context.Context) {
	ticker := m.clock.NewTicker(saveInterval)
	defer ticker.Stop()
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := m.PersistState(ctx); err != nil {
				log.Errorf("failed to persist state: %v", err)
			}
		}
	}
}

// PersistState writes the file if any state changed since the last save.
func (m *Manager) PersistState(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.dirty) == 0 {
		return nil
	}

	bs, err := marshalWithPanicRecovery(m.states)
	if err != nil {
		return fmt.Errorf("marshal states: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	start := m.clock.Now()
	if err := util.WriteBytesWithRestrictedPermission(ctx, m.filePath, bs); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	log.Debugf("persisted states: %v, took %v", maps.Keys(m.dirty), m.clock.Since(start))
	clear(m.dirty)

	return nil
}

// LoadState reads the entry of state from the file. Entries of types that are
// not registered are kept verbatim. A corrupted file is moved aside.
func (m *Manager) LoadState(state State) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rawStates, err := m.loadStateFile()
	if err != nil {
		return err
	}

	for name, raw := range rawStates {
		if _, registered := m.stateTypes[name]; !registered {
			if _, known := m.states[name]; !known {
				m.states[name] = &rawState{data: raw}
			}
		}
	}

	name := state.Name()
	raw, exists := rawStates[name]
	if !exists {
		return nil
	}

	loaded, err := m.loadSingleRawState(name, raw)
	if err != nil {
		return err
	}

	m.states[name] = loaded
	if loaded != nil {
		log.Debugf("loaded state: %s", name)
	}

	return nil
}

func (m *Manager) loadStateFile() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("state file %s does not exist", m.filePath)
			return nil, nil // nolint:nilnil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var rawStates map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawStates); err != nil {
		m.backupCorruptedFile()
		return nil, nil // nolint:nilnil
	}

	return rawStates, nil
}

// backupCorruptedFile moves an unreadable state file out of the way so the
// updater starts from scratch instead of failing on every start.
func (m *Manager) backupCorruptedFile() {
	log.Warnf("state file %s is corrupted, moving it aside", m.filePath)

	backupPath := fmt.Sprintf("%s.corrupted.%d", m.filePath, m.clock.Now().UnixNano())
	if err := os.Rename(m.filePath, backupPath); err != nil {
		log.Errorf("failed to back up corrupted state file: %v", err)
		return
	}

	log.Infof("created backup of corrupted state file at %s", backupPath)
}

func (m *Manager) loadSingleRawState(name string, raw json.RawMessage) (State, error) {
	stateType, ok := m.stateTypes[name]
	if !ok {
		return nil, fmt.Errorf(errStateNotRegistered, name)
	}

	if string(raw) == "null" {
		return nil, nil //nolint:nilnil
	}

	statePtr := reflect.New(stateType).Interface().(State)
	if err := json.Unmarshal(raw, statePtr); err != nil {
		return nil, fmt.Errorf("unmarshal state %s: %w", name, err)
	}

	return statePtr, nil
}

func marshalWithPanicRecovery(v any) (bs []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during marshal: %v", r)
		}
	}()
	return json.Marshal(v)
}
