package board

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/crg/timing"
)

// ErrUnknownBoard is returned when looking up a board that is not built in.
var ErrUnknownBoard = errors.New("board: unknown board")

// Each built-in board is produced by a function so that every build gets
// its own copy of the table.
var builtins = map[string]func() Config{
	"kc705":                kc705,
	"digilent_arty":        digilentArty,
	"radiona_ulx3s":        radionaULX3S,
	"gsd_orangecrab":       gsdOrangeCrab,
	"gsd_orangecrab_sdram": gsdOrangeCrabSDRAM,
	"colorlight_i5":        colorlightI5,
}

// Lookup returns a fresh copy of a built-in board.
func Lookup(name string) (Config, error) {
	mk, found := builtins[name]
	if !found {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownBoard, name)
	}

	return mk(), nil
}

// Names lists the built-in boards.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func port(name string, pins ...string) PortConfig {
	return PortConfig{Name: name, Pins: pins, IOStandard: "LVCMOS33"}
}

func serial(tx, rx string) PortConfig {
	return PortConfig{
		Name: "serial",
		Subsignals: []SubsignalConfig{
			{Name: "tx", Pins: []string{tx}},
			{Name: "rx", Pins: []string{rx}},
		},
		IOStandard: "LVCMOS33",
	}
}

func kc705() Config {
	return Config{
		Name: "kc705",
		Platform: PlatformConfig{
			Toolchain: "vivado",
			Ports: []PortConfig{
				{
					Name: "clk200",
					Subsignals: []SubsignalConfig{
						{Name: "p", Pins: []string{"AD12"}},
						{Name: "n", Pins: []string{"AD11"}},
					},
					IOStandard: "LVDS",
				},
				{Name: "cpu_reset", Pins: []string{"AB7"}, IOStandard: "LVCMOS15"},
				{Name: "user_led", Pins: []string{"AB8"}, IOStandard: "LVCMOS15"},
				{
					Name: "serial",
					Subsignals: []SubsignalConfig{
						{Name: "cts", Pins: []string{"L27"}},
						{Name: "rts", Pins: []string{"K23"}},
						{Name: "tx", Pins: []string{"K24"}},
						{Name: "rx", Pins: []string{"M19"}},
					},
					IOStandard: "LVCMOS25",
				},
			},
			Enabled: []string{"clk200", "cpu_reset", "user_led", "serial"},
		},
		Sources: []SourceConfig{
			{Name: "clk200", Freq: 200 * timing.MHz, Differential: true, Port: "clk200"},
		},
		ResetLines: []ResetLineConfig{
			{Name: "cpu_reset", Port: "cpu_reset"},
		},
		PLLs: []PLLConfig{
			{Name: "pll", Family: "S7MMCM", Input: "clk200"},
		},
		Domains: []DomainConfig{
			{Name: "sys", PLL: "pll", Freq: 125 * timing.MHz},
			{Name: "sys4x", PLL: "pll", Freq: 500 * timing.MHz, ResetLess: true},
			{Name: "idelay", PLL: "pll", Freq: 200 * timing.MHz},
		},
		Calibration: []CalibrationConfig{
			{Name: "idelayctrl", Domain: "idelay", Clients: []string{"sys"}},
		},
	}
}

func digilentArty() Config {
	return Config{
		Name: "digilent_arty",
		Platform: PlatformConfig{
			Toolchain: "vivado",
			Ports: []PortConfig{
				port("clk100", "E3"),
				port("cpu_reset", "C2"),
				port("user_led", "H5"),
				port("eth_ref_clk", "G18"),
				serial("D10", "A9"),
			},
			Enabled: []string{"clk100", "cpu_reset", "user_led", "eth_ref_clk", "serial"},
		},
		Sources: []SourceConfig{
			{Name: "clk100", Freq: 100 * timing.MHz, Port: "clk100"},
		},
		ResetLines: []ResetLineConfig{
			{Name: "cpu_reset", ActiveLow: true, Port: "cpu_reset"},
		},
		PLLs: []PLLConfig{
			{Name: "pll", Input: "clk100"},
		},
		Domains: []DomainConfig{
			{Name: "sys", PLL: "pll", Freq: 100 * timing.MHz},
			{Name: "sys4x", PLL: "pll", Freq: 400 * timing.MHz, ResetLess: true},
			{Name: "sys4x_dqs", PLL: "pll", Freq: 400 * timing.MHz, Phase: 90, ResetLess: true},
			{Name: "idelay", PLL: "pll", Freq: 200 * timing.MHz},
			{Name: "eth", PLL: "pll", Freq: 25 * timing.MHz, DependsOn: []string{"sys"}},
		},
		Calibration: []CalibrationConfig{
			{Name: "idelayctrl", Domain: "idelay", Clients: []string{"sys"}},
		},
	}
}

func radionaULX3S() Config {
	return Config{
		Name: "radiona_ulx3s",
		Platform: PlatformConfig{
			Toolchain: "trellis",
			Ports: []PortConfig{
				port("clk25", "G2"),
				port("rst", "R1"),
				port("user_led", "B2"),
				serial("L4", "M1"),
				port("sdram_clock", "F19"),
				{
					Name: "usb",
					Subsignals: []SubsignalConfig{
						{Name: "d_p", Pins: []string{"D15"}},
						{Name: "d_n", Pins: []string{"E15"}},
						{Name: "pullup", Pins: []string{"B12", "C12"}},
					},
					IOStandard: "LVCMOS33",
				},
				port("wifi_gpio0", "L2"),
			},
			Enabled: []string{"clk25", "rst", "user_led", "serial", "sdram_clock", "usb", "wifi_gpio0"},
		},
		Sources: []SourceConfig{
			{Name: "clk25", Freq: 25 * timing.MHz, Port: "clk25"},
		},
		ResetLines: []ResetLineConfig{
			{Name: "rst", Port: "rst"},
		},
		PLLs: []PLLConfig{
			{Name: "pll", Input: "clk25"},
			{Name: "usb_pll", Input: "clk25"},
			{Name: "video_pll", Input: "clk25"},
		},
		Domains: []DomainConfig{
			{Name: "sys", PLL: "pll", Freq: 50 * timing.MHz},
			{Name: "sys_ps", PLL: "pll", Freq: 50 * timing.MHz, Phase: 90},
			{Name: "usb_12", PLL: "usb_pll", Freq: 12 * timing.MHz, Margin: Exact()},
			{Name: "usb_48", PLL: "usb_pll", Freq: 48 * timing.MHz, Margin: Exact()},
			{Name: "hdmi", PLL: "video_pll", Freq: 25 * timing.MHz, Margin: Exact(), DependsOn: []string{"sys"}},
			{Name: "hdmi5x", PLL: "video_pll", Freq: 125 * timing.MHz, Margin: Exact(), DependsOn: []string{"sys"}},
		},
	}
}

func gsdOrangeCrab() Config {
	return Config{
		Name: "gsd_orangecrab",
		Platform: PlatformConfig{
			Toolchain: "trellis",
			Ports: []PortConfig{
				port("clk48", "A9"),
				port("rst_n", "V17"),
				{Name: "usr_btn", Pins: []string{"J17"}, IOStandard: "SSTL135_I"},
				port("user_led", "K4"),
				port("user_led:1", "M3"),
				port("user_led:2", "J3"),
			},
			Enabled: []string{"clk48", "rst_n", "usr_btn", "user_led", "user_led:1", "user_led:2"},
		},
		Sources: []SourceConfig{
			{Name: "clk48", Freq: 48 * timing.MHz, Port: "clk48"},
		},
		PORs: []PORConfig{
			{Name: "por", Source: "clk48"},
		},
		ResetLines: []ResetLineConfig{
			{Name: "usr_btn", ActiveLow: true, Port: "usr_btn"},
		},
		PLLs: []PLLConfig{
			{Name: "pll", Input: "clk48"},
			{Name: "usb_pll", Input: "clk48", IgnoreResetLines: true},
		},
		Domains: []DomainConfig{
			{Name: "por", Source: "clk48", ResetLess: true},
			{Name: "sys", PLL: "pll", Freq: 48 * timing.MHz},
			{Name: "usb_48", PLL: "usb_pll", Freq: 48 * timing.MHz},
			{Name: "usb_12", PLL: "usb_pll", Freq: 12 * timing.MHz, DependsOn: []string{"usb_48"}},
		},
	}
}

// gsdOrangeCrabSDRAM clocks the DDR3 PHY at twice the system clock. sys2x
// leaves the PLL through a stoppable edge clock buffer and sys is that clock
// divided by two, so sys only runs once sys2x does.
func gsdOrangeCrabSDRAM() Config {
	cfg := gsdOrangeCrab()
	cfg.Name = "gsd_orangecrab_sdram"

	cfg.ResetLines = append(cfg.ResetLines,
		ResetLineConfig{Name: "sdram_stop", Control: true},
		ResetLineConfig{Name: "sdram_reset", Control: true},
	)

	cfg.PLLs = []PLLConfig{
		{Name: "pll", Input: "clk48"},
	}

	cfg.Domains = []DomainConfig{
		{Name: "por", Source: "clk48", ResetLess: true},
		{Name: "init", PLL: "pll", Freq: 24 * timing.MHz, ResetLess: true},
		{Name: "sys2x_i", PLL: "pll", Freq: 96 * timing.MHz, ResetLess: true},
		{
			Name:      "sys2x",
			Derive:    &DeriveConfig{From: "sys2x_i", Divide: 1, Stop: "sdram_stop"},
			ResetLess: true,
		},
		{
			Name:   "sys",
			Derive: &DeriveConfig{From: "sys2x", Divide: 2, Reset: "sdram_reset"},
			Freq:   48 * timing.MHz,
		},
	}

	return cfg
}

func colorlightI5() Config {
	return Config{
		Name: "colorlight_i5",
		Platform: PlatformConfig{
			Toolchain: "trellis",
			Ports: []PortConfig{
				port("clk25", "P3"),
				port("user_led_n", "U16"),
				port("cpu_reset_n", "K18"),
				serial("J17", "H18"),
				port("sdram_clock", "B9"),
			},
			Enabled: []string{"clk25", "user_led_n", "cpu_reset_n", "serial", "sdram_clock"},
		},
		Sources: []SourceConfig{
			{Name: "clk25", Freq: 25 * timing.MHz, Port: "clk25"},
		},
		ResetLines: []ResetLineConfig{
			{Name: "cpu_reset_n", ActiveLow: true, Port: "cpu_reset_n"},
		},
		PLLs: []PLLConfig{
			{Name: "pll", Input: "clk25"},
			{Name: "usb_pll", Input: "clk25"},
			{Name: "video_pll", Input: "clk25"},
		},
		Domains: []DomainConfig{
			{Name: "sys", PLL: "pll", Freq: 60 * timing.MHz},
			{Name: "sys_ps", PLL: "pll", Freq: 60 * timing.MHz, Phase: 180, ResetLess: true},
			{Name: "usb_12", PLL: "usb_pll", Freq: 12 * timing.MHz, Margin: Exact()},
			{Name: "usb_48", PLL: "usb_pll", Freq: 48 * timing.MHz, Margin: Exact()},
			{Name: "hdmi", PLL: "video_pll", Freq: 40 * timing.MHz, Margin: Exact(), DependsOn: []string{"sys"}},
			{Name: "hdmi5x", PLL: "video_pll", Freq: 200 * timing.MHz, Margin: Exact(), DependsOn: []string{"sys"}},
		},
	}
}
