// Package sdk assembles the device emulators behind the V5 SDK jump table.
//
// Each subsystem lives in its own package and binds its slots with a
// Register function. New builds one of each; Register binds them all:
//
//	devs := sdk.New(sdk.Options{Clock: clock})
//	reg := jumptable.NewRegistry()
//	if err := sdk.Register(reg, devs); err != nil {
//		return err
//	}
//	table := reg.Build()
package sdk

import (
	"time"

	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/display"
	"github.com/wippyai/brainsim/sdk/serial"
	"github.com/wippyai/brainsim/sdk/system"
)

// Options configures the device set.
type Options struct {
	// Clock drives program time. nil uses the host clock.
	Clock system.Clock

	// SerialChannels lists the serial channels that exist. Empty means
	// stdio only.
	SerialChannels []uint32

	// StartupOptions is reported by vexSystemStartupOptions. Usually the
	// code signature options.
	StartupOptions uint32

	// InvertDisplay swaps the default display colors.
	InvertDisplay bool

	// PowerupOffset is how long the brain was on before the program
	// started.
	PowerupOffset time.Duration
}

// Devices is the emulated state of one brain.
type Devices struct {
	Serial      *serial.Device
	Controller  *controller.Device
	Display     *display.Device
	Competition *competition.Lifecycle
	System      *system.Device
}

// New creates a device set.
func New(opts Options) *Devices {
	var serialOpts []serial.Option
	if len(opts.SerialChannels) > 0 {
		serialOpts = append(serialOpts, serial.WithChannels(opts.SerialChannels...))
	}
	return &Devices{
		Serial:      serial.New(serialOpts...),
		Controller:  controller.New(),
		Display:     display.New(display.WithInverted(opts.InvertDisplay)),
		Competition: competition.NewLifecycle(),
		System: system.New(opts.Clock,
			system.WithStartupOptions(opts.StartupOptions),
			system.WithPowerupOffset(opts.PowerupOffset)),
	}
}

// Clock returns the clock the system device runs on.
func (d *Devices) Clock() system.Clock { return d.System.Clock() }

// Register binds every subsystem's slots into reg.
func Register(reg *jumptable.Registry, d *Devices) error {
	if err := serial.Register(reg, d.Serial); err != nil {
		return err
	}
	if err := controller.Register(reg, d.Controller); err != nil {
		return err
	}
	if err := display.Register(reg, d.Display); err != nil {
		return err
	}
	if err := competition.Register(reg, d.Competition); err != nil {
		return err
	}
	return system.Register(reg, d.System)
}

// Table registers d into a fresh registry and freezes it.
func Table(d *Devices) (*jumptable.JumpTable, error) {
	reg := jumptable.NewRegistry()
	if err := Register(reg, d); err != nil {
		return nil, err
	}
	return reg.Build(), nil
}
