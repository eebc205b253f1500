//go:build !linux

package state

import (
	"context"
)

// Start publishes an unclassified, unmetered connection. Platforms without a
// NetworkManager equivalent are not monitored.
func (m *NetworkMonitor) Start(_ context.Context) error {
	m.SetConnection(ConnectionTypeUnknown, false)
	return nil
}
