package sdk

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/memory"
	"github.com/wippyai/brainsim/sdk/display"
	"github.com/wippyai/brainsim/sdk/system"
)

func TestTable(t *testing.T) {
	devs := New(Options{Clock: system.NewManualClock(time.Unix(0, 0))})
	tbl, err := Table(devs)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}

	for _, name := range []string{
		"vexSerialWriteBuffer",
		"vex_printf",
		"vexControllerGet",
		"vexDisplayRender",
		"vexCompetitionStatus",
		"vexSystemTimeGet",
		"vexSystemExitRequest",
	} {
		if _, ok := tbl.LookupName(name); !ok {
			t.Errorf("%s not bound", name)
		}
	}
	if _, ok := tbl.Import(system.BacktraceModule, system.BacktraceName); !ok {
		t.Error("backtrace import not bound")
	}

	prev := uint32(0)
	for i, s := range tbl.Slots() {
		if i > 0 && s.Address <= prev {
			t.Errorf("slots out of order at %#x", s.Address)
		}
		if s.Address%4 != 0 || s.Address >= jumptable.Size {
			t.Errorf("%s at %#x", s.Name, s.Address)
		}
		prev = s.Address
	}
}

func TestRegisterTwice(t *testing.T) {
	devs := New(Options{})
	reg := jumptable.NewRegistry()
	if err := Register(reg, devs); err != nil {
		t.Fatal(err)
	}
	if err := Register(reg, devs); err == nil {
		t.Error("registering the same devices twice should conflict")
	}
}

func TestOptions(t *testing.T) {
	devs := New(Options{
		Clock:          system.NewManualClock(time.Unix(0, 0)),
		SerialChannels: []uint32{1, 2},
		StartupOptions: 5,
		InvertDisplay:  true,
	})
	if devs.Display.Foreground() != display.Black || devs.Display.Background() != display.White {
		t.Errorf("inverted colors = %#06x on %#06x", devs.Display.Foreground(), devs.Display.Background())
	}
	if devs.Serial.Write(2, []byte("x")) != 1 {
		t.Error("channel 2 should exist")
	}

	tbl, err := Table(devs)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tbl.Invoke(context.Background(), memory.NewBuffer(memory.PageSize, 1), system.AddrStartupOptions)
	if err != nil || got != 5 {
		t.Errorf("startup options = %d, %v", got, err)
	}
}
