// Package platform describes an FPGA board by composition: an IO table, a
// connector table and a toolchain profile.
package platform

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sarchlab/crg/pll"
)

// ErrUnknownToolchain is returned for a toolchain without a profile.
var ErrUnknownToolchain = errors.New("platform: unknown toolchain")

// ToolchainProfile carries everything that differs between vendor flows
// and matters to clocking.
type ToolchainProfile struct {
	Name   string
	Vendor string

	// DefaultPLL is the PLL family used when a board does not name one.
	DefaultPLL string
}

var toolchains = map[string]ToolchainProfile{
	"trellis":  {Name: "trellis", Vendor: "lattice", DefaultPLL: "ECP5PLL"},
	"diamond":  {Name: "diamond", Vendor: "lattice", DefaultPLL: "ECP5PLL"},
	"icestorm": {Name: "icestorm", Vendor: "lattice", DefaultPLL: "ICE40PLL"},
	"vivado":   {Name: "vivado", Vendor: "xilinx", DefaultPLL: "S7PLL"},
	"yosys+nextpnr": {
		Name: "yosys+nextpnr", Vendor: "xilinx", DefaultPLL: "S7PLL",
	},
	"vivado-ultrascale": {
		Name: "vivado-ultrascale", Vendor: "xilinx", DefaultPLL: "USMMCM",
	},
	"quartus": {Name: "quartus", Vendor: "intel", DefaultPLL: "CycloneIVPLL"},
}

// LookupToolchain returns the profile of a toolchain.
func LookupToolchain(name string) (ToolchainProfile, error) {
	tc, found := toolchains[strings.ToLower(name)]
	if !found {
		return ToolchainProfile{}, fmt.Errorf("%w: %q", ErrUnknownToolchain, name)
	}

	return tc, nil
}

// Platform is a board's capability set.
type Platform struct {
	Name       string
	IO         *IOTable
	Connectors *ConnectorTable
	Toolchain  ToolchainProfile
}

// New creates a platform.
func New(
	name string,
	io *IOTable,
	connectors *ConnectorTable,
	toolchain ToolchainProfile,
) *Platform {
	if io == nil {
		io, _ = NewIOTable()
	}

	return &Platform{
		Name:       name,
		IO:         io,
		Connectors: connectors,
		Toolchain:  toolchain,
	}
}

// Request returns the named port.
func (p *Platform) Request(name PortName) (PortDescriptor, error) {
	return p.IO.Get(name)
}

// DefaultPLLFamily returns the PLL family of the platform's toolchain.
func (p *Platform) DefaultPLLFamily() (pll.Family, error) {
	return pll.LookupFamily(p.Toolchain.DefaultPLL)
}

// PackagePins resolves every pin of a port to a package pin.
func (p *Platform) PackagePins(name PortName) ([]string, error) {
	port, err := p.IO.Get(name)
	if err != nil {
		return nil, err
	}

	pins := []string{}

	for _, ref := range port.AllPins() {
		pin, err := p.Connectors.Resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", name, err)
		}

		pins = append(pins, pin)
	}

	return pins, nil
}

// PinConflict is a package pin claimed by more than one enabled port.
type PinConflict struct {
	Pin   string
	Ports []PortName
}

func (c PinConflict) String() string {
	names := make([]string, 0, len(c.Ports))
	for _, p := range c.Ports {
		names = append(names, string(p))
	}

	return fmt.Sprintf("pin %s shared by %s", c.Pin, strings.Join(names, ", "))
}

// PinConflicts reports every package pin used by two or more of the enabled
// ports. Whether such sharing is intended cannot be told from the table, so
// conflicts are only reported, never resolved.
func (p *Platform) PinConflicts(enabled []PortName) ([]PinConflict, error) {
	users := make(map[string][]PortName)

	for _, name := range enabled {
		pins, err := p.PackagePins(name)
		if err != nil {
			return nil, err
		}

		for _, pin := range pins {
			if n := len(users[pin]); n > 0 && users[pin][n-1] == name {
				continue
			}

			users[pin] = append(users[pin], name)
		}
	}

	conflicts := []PinConflict{}

	for pin, ports := range users {
		if len(ports) > 1 {
			conflicts = append(conflicts, PinConflict{Pin: pin, Ports: ports})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Pin < conflicts[j].Pin
	})

	return conflicts, nil
}
