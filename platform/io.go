package platform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrPortNotFound is returned when a port is not described by the
	// platform.
	ErrPortNotFound = errors.New("platform: port not found")

	// ErrDuplicatePort is returned when a port is described twice.
	ErrDuplicatePort = errors.New("platform: duplicate port")

	// ErrConnectorNotFound is returned when a pin refers to a missing
	// connector or connector position.
	ErrConnectorNotFound = errors.New("platform: connector pin not found")
)

// PortName identifies a port as "name" or "name:index". Index 0 may be
// omitted.
type PortName string

// Port builds a port name from a resource name and an index.
func Port(name string, index int) PortName {
	if index == 0 {
		return PortName(name)
	}

	return PortName(fmt.Sprintf("%s:%d", name, index))
}

// Subsignal is one named group of pins of a port, such as "tx" of a serial
// port.
type Subsignal struct {
	Name string
	Pins []string
}

// PortDescriptor describes one physical resource of a board. A pin is
// either a package ball ("P3") or a connector position ("pmodb:2").
type PortDescriptor struct {
	Name       PortName
	Pins       []string
	Subsignals []Subsignal
	IOStandard string
	Inverted   bool
}

// AllPins lists the pins of the port and of every subsignal.
func (p PortDescriptor) AllPins() []string {
	pins := append([]string(nil), p.Pins...)
	for _, s := range p.Subsignals {
		pins = append(pins, s.Pins...)
	}

	return pins
}

// IOTable is the typed registry of the ports of a platform.
type IOTable struct {
	ports map[PortName]PortDescriptor
	order []PortName
}

// NewIOTable creates a table holding the given ports.
func NewIOTable(ports ...PortDescriptor) (*IOTable, error) {
	t := &IOTable{ports: make(map[PortName]PortDescriptor)}

	for _, p := range ports {
		if err := t.Add(p); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Add registers a port.
func (t *IOTable) Add(p PortDescriptor) error {
	if _, found := t.ports[p.Name]; found {
		return fmt.Errorf("%w: %q", ErrDuplicatePort, p.Name)
	}

	t.ports[p.Name] = p
	t.order = append(t.order, p.Name)

	return nil
}

// Get returns the port with the given name.
func (t *IOTable) Get(name PortName) (PortDescriptor, error) {
	p, found := t.ports[name]
	if !found {
		return PortDescriptor{}, fmt.Errorf("%w: %q", ErrPortNotFound, name)
	}

	return p, nil
}

// Names lists the ports in the order they were added.
func (t *IOTable) Names() []PortName {
	return append([]PortName(nil), t.order...)
}

// ConnectorTable maps connector positions to package pins. A "-" position
// is not connected.
type ConnectorTable struct {
	connectors map[string][]string
}

// NewConnectorTable creates a connector table. Each connector is given as a
// space separated list of pins, the way board files write them.
func NewConnectorTable(connectors map[string]string) *ConnectorTable {
	t := &ConnectorTable{connectors: make(map[string][]string)}
	for name, pins := range connectors {
		t.connectors[name] = strings.Fields(pins)
	}

	return t
}

// Resolve turns a pin reference into a package pin. References without a
// connector prefix are returned as they are.
func (t *ConnectorTable) Resolve(pin string) (string, error) {
	conn, pos, found := strings.Cut(pin, ":")
	if !found {
		return pin, nil
	}

	var pins []string
	if t != nil {
		pins = t.connectors[conn]
	}

	i, err := strconv.Atoi(pos)
	if err != nil || pins == nil || i < 0 || i >= len(pins) || pins[i] == "-" {
		return "", fmt.Errorf("%w: %q", ErrConnectorNotFound, pin)
	}

	return pins[i], nil
}
