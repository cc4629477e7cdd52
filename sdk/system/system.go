package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/jumptable"
)

// Jump table addresses.
const (
	AddrTasksRun       uint32 = 0x05c
	AddrTimeGet        uint32 = 0x118
	AddrGettime        uint32 = 0x11c
	AddrGetdate        uint32 = 0x120
	AddrStartupOptions uint32 = 0x12c
	AddrExitRequest    uint32 = 0x130
	AddrHighResTimeGet uint32 = 0x134
	AddrPowerupTimeGet uint32 = 0x138
	AddrLinkAddrGet    uint32 = 0x13c
	AddrSystemVersion  uint32 = 0x1000
	AddrStdlibVersion  uint32 = 0x1004
)

// Reported versions, packed major.minor.build.beta one byte each.
const (
	DefaultSystemVersion uint32 = 0x01010400
	DefaultStdlibVersion uint32 = 0x01000000
)

// LinkAddress is where user code is linked on hardware.
const LinkAddress uint32 = 0x03800000

// BacktraceImport names the host import guests call to report a backtrace.
const (
	BacktraceModule = "env"
	BacktraceName   = "sim_log_backtrace"
)

// Option configures a Device.
type Option func(*Device)

// WithStartupOptions sets the value vexSystemStartupOptions reports; the
// loader passes the code signature options.
func WithStartupOptions(opts uint32) Option {
	return func(d *Device) { d.startup = opts }
}

// WithPowerupOffset sets how long the brain was on before the program
// started.
func WithPowerupOffset(offset time.Duration) Option {
	return func(d *Device) { d.powerup = offset }
}

// WithVersions overrides the reported system and stdlib versions.
func WithVersions(system, stdlib uint32) Option {
	return func(d *Device) { d.sysVersion, d.libVersion = system, stdlib }
}

// Device serves the system slots from a Clock.
type Device struct {
	clock      Clock
	powerup    time.Duration
	startup    uint32
	sysVersion uint32
	libVersion uint32
	exit       bool
}

// New creates a system device. A nil clock uses the real clock.
func New(clock Clock, opts ...Option) *Device {
	if clock == nil {
		clock = NewRealClock()
	}
	d := &Device{
		clock:      clock,
		sysVersion: DefaultSystemVersion,
		libVersion: DefaultStdlibVersion,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Clock returns the device clock.
func (d *Device) Clock() Clock { return d.clock }

// ExitRequested reports whether the guest called vexSystemExitRequest.
func (d *Device) ExitRequested() bool { return d.exit }

// Slots returns the system slots bound to d.
func (d *Device) Slots() []jumptable.Slot {
	u32 := jumptable.Fn(jumptable.RetUint)
	u64 := jumptable.Fn(jumptable.RetULong)
	void := jumptable.Fn(jumptable.Void)
	ptr := jumptable.Fn(jumptable.Void, jumptable.Ptr)

	return []jumptable.Slot{
		{Address: AddrTasksRun, Name: "vexTasksRun", Sig: void, Handler: nop, Yield: true},
		{Address: AddrTimeGet, Name: "vexSystemTimeGet", Sig: u32, Handler: d.timeGet, Yield: true},
		{Address: AddrGettime, Name: "vexGettime", Sig: ptr, Handler: d.gettime},
		{Address: AddrGetdate, Name: "vexGetdate", Sig: ptr, Handler: d.getdate},
		{Address: AddrStartupOptions, Name: "vexSystemStartupOptions", Sig: u32, Handler: d.startupOptions},
		{Address: AddrExitRequest, Name: "vexSystemExitRequest", Sig: void, Handler: d.exitRequest},
		{Address: AddrHighResTimeGet, Name: "vexSystemHighResTimeGet", Sig: u64, Handler: d.highResTimeGet, Yield: true},
		{Address: AddrPowerupTimeGet, Name: "vexSystemPowerupTimeGet", Sig: u64, Handler: d.powerupTimeGet},
		{Address: AddrLinkAddrGet, Name: "vexSystemLinkAddrGet", Sig: u32, Handler: linkAddrGet},
		{Address: AddrSystemVersion, Name: "vexSystemVersion", Sig: u32, Handler: d.systemVersion},
		{Address: AddrStdlibVersion, Name: "vexStdlibVersion", Sig: u32, Handler: d.stdlibVersion},
	}
}

// Imports returns the named host imports the system provides.
func (d *Device) Imports() []jumptable.HostImport {
	return []jumptable.HostImport{
		{Module: BacktraceModule, Name: BacktraceName, Sig: jumptable.Fn(jumptable.Void), Handler: d.logBacktrace},
	}
}

// Register binds the system slots and host imports of d into reg.
func Register(reg *jumptable.Registry, d *Device) error {
	for _, s := range d.Slots() {
		if err := reg.Insert(s); err != nil {
			return err
		}
	}
	for _, h := range d.Imports() {
		if err := reg.Import(h); err != nil {
			return err
		}
	}
	return nil
}

func nop(*jumptable.Call) (uint64, error) { return 0, nil }

func (d *Device) timeGet(*jumptable.Call) (uint64, error) {
	return jumptable.U32(uint32(d.clock.Now().Milliseconds())), nil
}

func (d *Device) highResTimeGet(*jumptable.Call) (uint64, error) {
	return jumptable.I64(d.clock.Now().Microseconds()), nil
}

func (d *Device) powerupTimeGet(*jumptable.Call) (uint64, error) {
	return jumptable.I64((d.powerup + d.clock.Now()).Microseconds()), nil
}

// gettime stores hour, minute, second and hundredths as four bytes.
func (d *Device) gettime(c *jumptable.Call) (uint64, error) {
	now := d.clock.Wall()
	b := []byte{
		byte(now.Hour()),
		byte(now.Minute()),
		byte(now.Second()),
		byte(now.Nanosecond() / int(10*time.Millisecond)),
	}
	return 0, c.Mem.Write(c.Ptr(0), b)
}

// getdate stores a u16 year, then day and month bytes.
func (d *Device) getdate(c *jumptable.Call) (uint64, error) {
	now := d.clock.Wall()
	ptr := c.Ptr(0)
	if err := c.Mem.Region(ptr, 4); err != nil {
		return 0, err
	}
	if err := c.Mem.WriteU16(ptr, uint16(now.Year())); err != nil {
		return 0, err
	}
	return 0, c.Mem.Write(ptr+2, []byte{byte(now.Day()), byte(now.Month())})
}

func (d *Device) startupOptions(*jumptable.Call) (uint64, error) {
	return jumptable.U32(d.startup), nil
}

// exitRequest ends the program cleanly. The error unwinds the guest.
func (d *Device) exitRequest(*jumptable.Call) (uint64, error) {
	d.exit = true
	Logger().Info("guest requested exit")
	return 0, errors.Exit(0)
}

func linkAddrGet(*jumptable.Call) (uint64, error) {
	return jumptable.U32(LinkAddress), nil
}

func (d *Device) systemVersion(*jumptable.Call) (uint64, error) {
	return jumptable.U32(d.sysVersion), nil
}

func (d *Device) stdlibVersion(*jumptable.Call) (uint64, error) {
	return jumptable.U32(d.libVersion), nil
}

func (d *Device) logBacktrace(*jumptable.Call) (uint64, error) {
	Logger().Warn("guest backtrace requested", zap.Duration("at", d.clock.Now()))
	return 0, nil
}
