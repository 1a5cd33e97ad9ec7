// Package bluez implements the transport contract over the BlueZ D-Bus
// API on Linux: org.bluez.Adapter1 discovery, Device1 connects and
// GattCharacteristic1 write/notify on the UART service.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/kucendro/g1/internal/transport"
)

const (
	busName      = "org.bluez"
	adapterPath  = "/org/bluez/hci0"
	adapterIface = "org.bluez.Adapter1"
	deviceIface  = "org.bluez.Device1"
	charIface    = "org.bluez.GattCharacteristic1"
	propsIface   = "org.freedesktop.DBus.Properties"
	omIface      = "org.freedesktop.DBus.ObjectManager"
)

// Transport is a BlueZ-backed BLE central.
type Transport struct {
	conn *dbus.Conn
}

// New connects to the system bus and verifies BlueZ is present.
func New() (*Transport, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus, is bluetooth.service running")
	}
	return &Transport{conn: conn}, nil
}

// Close releases the bus connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// deviceObjectPath converts "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(addr string) dbus.ObjectPath {
	return dbus.ObjectPath(adapterPath + "/dev_" + strings.ReplaceAll(addr, ":", "_"))
}

// Scan implements transport.Transport. It runs adapter discovery for the
// lifetime of ctx and emits devices whose Name contains filter.
func (t *Transport) Scan(ctx context.Context, filter string) (<-chan transport.Advertisement, error) {
	adapter := t.conn.Object(busName, adapterPath)
	if call := adapter.Call(adapterIface+".StartDiscovery", 0); call.Err != nil {
		return nil, fmt.Errorf("start discovery: %w", call.Err)
	}

	match := "type='signal',interface='" + omIface + "',member='InterfacesAdded'"
	t.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, match)
	signals := make(chan *dbus.Signal, 16)
	t.conn.Signal(signals)

	out := make(chan transport.Advertisement, 8)
	go func() {
		defer close(out)
		defer func() {
			t.conn.RemoveSignal(signals)
			t.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, match)
			adapter.Call(adapterIface+".StopDiscovery", 0)
		}()

		// Devices BlueZ already knows about surface through the object
		// manager, not InterfacesAdded.
		for _, adv := range t.knownDevices() {
			if matchesFilter(adv.Name, filter) {
				select {
				case out <- adv:
				case <-ctx.Done():
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				adv, ok := advertisementFromSignal(sig)
				if !ok || !matchesFilter(adv.Name, filter) {
					continue
				}
				select {
				case out <- adv:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func matchesFilter(name, filter string) bool {
	return name != "" && (filter == "" || strings.Contains(name, filter))
}

// knownDevices lists devices already present in the BlueZ object tree.
func (t *Transport) knownDevices() []transport.Advertisement {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := t.conn.Object(busName, "/").Call(omIface+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return nil
	}
	var out []transport.Advertisement
	for _, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		out = append(out, advertisementFromProps(props))
	}
	return out
}

func advertisementFromSignal(sig *dbus.Signal) (transport.Advertisement, bool) {
	if sig.Name != omIface+".InterfacesAdded" || len(sig.Body) < 2 {
		return transport.Advertisement{}, false
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return transport.Advertisement{}, false
	}
	props, ok := ifaces[deviceIface]
	if !ok {
		return transport.Advertisement{}, false
	}
	return advertisementFromProps(props), true
}

func advertisementFromProps(props map[string]dbus.Variant) transport.Advertisement {
	adv := transport.Advertisement{SeenAt: time.Now()}
	if v, ok := props["Address"]; ok {
		adv.Address, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		adv.Name, _ = v.Value().(string)
	}
	if v, ok := props["RSSI"]; ok {
		if rssi, ok := v.Value().(int16); ok {
			adv.RSSI = int(rssi)
		}
	}
	return adv
}

// Connect implements transport.Transport.
func (t *Transport) Connect(ctx context.Context, address string) (transport.Link, error) {
	devPath := deviceObjectPath(address)
	dev := t.conn.Object(busName, devPath)

	call := dev.CallWithContext(ctx, deviceIface+".Connect", 0)
	if call.Err != nil {
		return nil, normalizeConnectErr(call.Err)
	}

	rxPath, txPath, err := t.resolveUARTChars(ctx, devPath)
	if err != nil {
		dev.Call(deviceIface+".Disconnect", 0)
		return nil, err
	}

	link := &link{
		conn:    t.conn,
		devPath: devPath,
		txPath:  txPath,
		rxPath:  rxPath,
		notify:  make(chan []byte, 32),
	}
	if err := link.startNotify(); err != nil {
		dev.Call(deviceIface+".Disconnect", 0)
		return nil, err
	}
	return link, nil
}

func normalizeConnectErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transport.ErrConnectTimeout
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Timeout") || strings.Contains(msg, "timed out"):
		return transport.ErrConnectTimeout
	case strings.Contains(msg, "Refused") || strings.Contains(msg, "rejected"):
		return transport.ErrConnectRefused
	default:
		return fmt.Errorf("connect %w: %v", transport.ErrConnectRefused, err)
	}
}

// resolveUARTChars walks the object tree for the device's UART RX/TX
// characteristic paths. Service resolution may lag the connect, so poll
// until found or ctx ends.
func (t *Transport) resolveUARTChars(ctx context.Context, devPath dbus.ObjectPath) (rx, tx dbus.ObjectPath, err error) {
	for i := 0; i < 20; i++ {
		var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
		err = t.conn.Object(busName, "/").Call(omIface+".GetManagedObjects", 0).Store(&objects)
		if err != nil {
			return "", "", fmt.Errorf("get managed objects: %w", err)
		}
		for path, ifaces := range objects {
			props, ok := ifaces[charIface]
			if !ok || !strings.HasPrefix(string(path), string(devPath)) {
				continue
			}
			uuid, _ := props["UUID"].Value().(string)
			switch strings.ToUpper(uuid) {
			case transport.UARTRx:
				rx = path
			case transport.UARTTx:
				tx = path
			}
		}
		if rx != "" && tx != "" {
			return rx, tx, nil
		}
		select {
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return "", "", normalizeConnectErr(ctx.Err())
		}
	}
	return "", "", fmt.Errorf("UART characteristics not found under %s", devPath)
}

// link is one connected device with UART notifications flowing.
type link struct {
	conn    *dbus.Conn
	devPath dbus.ObjectPath
	txPath  dbus.ObjectPath
	rxPath  dbus.ObjectPath

	mu      sync.Mutex
	notify  chan []byte
	signals chan *dbus.Signal
	match   string
	closed  bool
}

func (l *link) startNotify() error {
	rx := l.conn.Object(busName, l.rxPath)
	if call := rx.Call(charIface+".StartNotify", 0); call.Err != nil {
		return fmt.Errorf("start notify: %w", call.Err)
	}

	l.match = "type='signal',interface='" + propsIface + "',member='PropertiesChanged',path='" + string(l.rxPath) + "'"
	l.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, l.match)
	l.signals = make(chan *dbus.Signal, 32)
	l.conn.Signal(l.signals)

	go func() {
		for sig := range l.signals {
			frame, ok := valueFromSignal(sig, l.rxPath)
			if !ok {
				continue
			}
			l.mu.Lock()
			if !l.closed {
				select {
				case l.notify <- frame:
				default:
				}
			}
			l.mu.Unlock()
		}
	}()
	return nil
}

func valueFromSignal(sig *dbus.Signal, rxPath dbus.ObjectPath) ([]byte, bool) {
	if sig.Path != rxPath || len(sig.Body) < 2 {
		return nil, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, false
	}
	v, ok := changed["Value"]
	if !ok {
		return nil, false
	}
	frame, ok := v.Value().([]byte)
	return frame, ok
}

// Write implements transport.Link.
func (l *link) Write(ctx context.Context, frame []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return transport.ErrLinkClosed
	}
	tx := l.conn.Object(busName, l.txPath)
	options := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	call := tx.CallWithContext(ctx, charIface+".WriteValue", 0, frame, options)
	if call.Err != nil {
		return fmt.Errorf("write value: %w", call.Err)
	}
	return nil
}

// Notifications implements transport.Link.
func (l *link) Notifications() <-chan []byte {
	return l.notify
}

// RSSI implements transport.Link.
func (l *link) RSSI() int {
	dev := l.conn.Object(busName, l.devPath)
	var v dbus.Variant
	if err := dev.Call(propsIface+".Get", 0, deviceIface, "RSSI").Store(&v); err != nil {
		return 0
	}
	if rssi, ok := v.Value().(int16); ok {
		return int(rssi)
	}
	return 0
}

// Close implements transport.Link.
func (l *link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.notify)
	l.mu.Unlock()

	l.conn.Object(busName, l.rxPath).Call(charIface+".StopNotify", 0)
	if l.signals != nil {
		l.conn.RemoveSignal(l.signals)
		l.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, l.match)
		close(l.signals)
	}
	call := l.conn.Object(busName, l.devPath).Call(deviceIface+".Disconnect", 0)
	return call.Err
}
