package state

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// NetworkMonitor publishes the primary connection and whether it is metered.
// Both variables stay unset until the platform monitor reports for the first
// time.
type NetworkMonitor struct {
	connectionType *variable.Copy[ConnectionType]
	isMetered      *variable.Copy[bool]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ NetworkProvider = (*NetworkMonitor)(nil)

func NewNetworkMonitor() *NetworkMonitor {
	return &NetworkMonitor{
		connectionType: variable.NewCopy[ConnectionType]("connection_type", variable.ModeAsync),
		isMetered:      variable.NewCopy[bool]("is_metered", variable.ModeAsync),
	}
}

// SetConnection publishes a new connection state. Subscribers are only
// notified about values that changed.
func (m *NetworkMonitor) SetConnection(connType ConnectionType, metered bool) {
	if current, ok := m.connectionType.Get(); !ok || current != connType {
		log.Infof("network: primary connection is %s (metered: %t)", connType, metered)
	}
	setIfChanged(m.connectionType, &connType)
	setIfChanged(m.isMetered, &metered)
}

// Stop ends monitoring and waits for the monitor goroutine.
func (m *NetworkMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

func (m *NetworkMonitor) ConnectionType() variable.Variable[ConnectionType] {
	return m.connectionType
}

func (m *NetworkMonitor) IsMetered() variable.Variable[bool] { return m.isMetered }
