package tunetray

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// BusClient defines the session-bus operations the registry and session
// handles depend on. Keeping it narrow lets tests swap in a mock instead
// of a live bus connection.
//
//go:generate mockgen -destination=mocks/bus_client_mock.go -package=mocks github.com/tunetray/tunetray/pkg/tunetray BusClient
type BusClient interface {
	// Close closes the bus connection
	Close() error

	// ListNames returns all names currently exposed on the bus
	ListNames() ([]string, error)

	// GetProperty retrieves a property from a bus object.
	// dest: the bus name (e.g. "org.mpris.MediaPlayer2.spotify")
	// path: the object path (e.g. "/org/mpris/MediaPlayer2")
	// prop: the fully qualified property name
	GetProperty(dest, path, prop string) (dbus.Variant, error)

	// SetProperty writes a property on a bus object
	SetProperty(dest, path, prop string, value interface{}) error

	// Call invokes a method on a bus object and discards the reply
	Call(dest, path, method string, args ...interface{}) error
}

type sessionBusClient struct {
	conn *dbus.Conn
}

// NewSessionBusClient connects to the user session bus
func NewSessionBusClient() (BusClient, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	return &sessionBusClient{conn: conn}, nil
}

func (c *sessionBusClient) Close() error {
	return c.conn.Close()
}

func (c *sessionBusClient) ListNames() ([]string, error) {
	var names []string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (c *sessionBusClient) GetProperty(dest, path, prop string) (dbus.Variant, error) {
	obj := c.conn.Object(dest, dbus.ObjectPath(path))
	return obj.GetProperty(prop)
}

func (c *sessionBusClient) SetProperty(dest, path, prop string, value interface{}) error {
	obj := c.conn.Object(dest, dbus.ObjectPath(path))
	return obj.SetProperty(prop, dbus.MakeVariant(value))
}

func (c *sessionBusClient) Call(dest, path, method string, args ...interface{}) error {
	obj := c.conn.Object(dest, dbus.ObjectPath(path))
	return obj.Call(method, 0, args...).Err
}
