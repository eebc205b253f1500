package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
)

const (
	networkManagerDest                       = "org.freedesktop.NetworkManager"
	networkManagerObjectNode dbus.ObjectPath = "/org/freedesktop/NetworkManager"
	networkManagerInterface                  = "org.freedesktop.NetworkManager"
	dbusPropertiesInterface                  = "org.freedesktop.DBus.Properties"

	// NM_STATE_CONNECTED_SITE; anything below has no usable route.
	nmStateConnectedSite uint32 = 60

	nmMeteredYes      uint32 = 1
	nmMeteredGuessYes uint32 = 3

	dbusCallTimeout = 5 * time.Second
)

// Start subscribes to NetworkManager property changes on the system bus and
// publishes the primary connection on every change.
func (m *NetworkMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return errors.New("network monitor already started")
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchObjectPath(networkManagerObjectNode),
		dbus.WithMatchInterface(dbusPropertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		closeDbusConn(conn)
		return fmt.Errorf("subscribe to NetworkManager signals: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	m.refresh(ctx, conn)

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer closeDbusConn(conn)
		defer conn.RemoveSignal(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					log.Warn("NetworkManager signal channel closed")
					return
				}
				log.Tracef("NetworkManager signal: %s", sig.Name)
				m.refresh(ctx, conn)
			}
		}
	}()

	return nil
}

func (m *NetworkMonitor) refresh(ctx context.Context, conn *dbus.Conn) {
	obj := conn.Object(networkManagerDest, networkManagerObjectNode)

	var state uint32
	if err := getNetworkManagerProperty(ctx, obj, "State", &state); err != nil {
		log.Debugf("failed to read NetworkManager state: %v", err)
		return
	}
	if state < nmStateConnectedSite {
		m.SetConnection(ConnectionTypeNone, false)
		return
	}

	var primaryType string
	if err := getNetworkManagerProperty(ctx, obj, "PrimaryConnectionType", &primaryType); err != nil {
		log.Debugf("failed to read NetworkManager primary connection type: %v", err)
		return
	}

	var metered uint32
	if err := getNetworkManagerProperty(ctx, obj, "Metered", &metered); err != nil {
		log.Debugf("failed to read NetworkManager metered state: %v", err)
	}

	m.SetConnection(parseNetworkManagerType(primaryType), metered == nmMeteredYes || metered == nmMeteredGuessYes)
}

func getNetworkManagerProperty(ctx context.Context, obj dbus.BusObject, property string, store any) error {
	ctx, cancel := context.WithTimeout(ctx, dbusCallTimeout)
	defer cancel()

	var v dbus.Variant
	call := obj.CallWithContext(ctx, dbusPropertiesInterface+".Get", 0, networkManagerInterface, property)
	if err := call.Store(&v); err != nil {
		return fmt.Errorf("get property %s: %w", property, err)
	}
	return v.Store(store)
}

func parseNetworkManagerType(t string) ConnectionType {
	switch t {
	case "":
		return ConnectionTypeNone
	case "802-3-ethernet":
		return ConnectionTypeEthernet
	case "802-11-wireless":
		return ConnectionTypeWifi
	case "gsm", "cdma":
		return ConnectionTypeCellular
	case "bluetooth":
		return ConnectionTypeBluetooth
	case "vpn", "wireguard":
		return ConnectionTypeVPN
	default:
		return ConnectionTypeUnknown
	}
}

func closeDbusConn(conn *dbus.Conn) {
	if err := conn.Close(); err != nil {
		log.Warnf("got an error closing dbus connection, err: %s", err)
	}
}
