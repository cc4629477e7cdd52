package serial

import (
	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/sdk/printf"
)

// Jump table addresses.
const (
	AddrWriteChar   uint32 = 0x898
	AddrWriteBuffer uint32 = 0x89c
	AddrReadChar    uint32 = 0x8a0
	AddrPeekChar    uint32 = 0x8a4
	AddrWriteFree   uint32 = 0x8ac

	AddrPrintf    uint32 = 0x0f0
	AddrSprintf   uint32 = 0x0f4
	AddrSnprintf  uint32 = 0x0f8
	AddrVprintf   uint32 = 0x0fc
	AddrVsprintf  uint32 = 0x100
	AddrVsnprintf uint32 = 0x104
)

// Slots returns the serial and stdio slots bound to d.
func (d *Device) Slots() []jumptable.Slot {
	printfSig := jumptable.Fn(jumptable.RetInt, jumptable.Str, jumptable.Ptr)
	sprintfSig := jumptable.Fn(jumptable.RetInt, jumptable.Ptr, jumptable.Str, jumptable.Ptr)
	snprintfSig := jumptable.Fn(jumptable.RetInt, jumptable.Ptr, jumptable.Uint, jumptable.Str, jumptable.Ptr)

	return []jumptable.Slot{
		{Address: AddrWriteChar, Name: "vexSerialWriteChar", Handler: d.writeChar,
			Sig: jumptable.Fn(jumptable.RetInt, jumptable.Uint, jumptable.Uint)},
		{Address: AddrWriteBuffer, Name: "vexSerialWriteBuffer", Handler: d.writeBuffer,
			Sig: jumptable.Fn(jumptable.RetInt, jumptable.Uint, jumptable.Buf, jumptable.Uint)},
		{Address: AddrReadChar, Name: "vexSerialReadChar", Handler: d.readChar,
			Sig: jumptable.Fn(jumptable.RetInt, jumptable.Uint)},
		{Address: AddrPeekChar, Name: "vexSerialPeekChar", Handler: d.peekChar,
			Sig: jumptable.Fn(jumptable.RetInt, jumptable.Uint)},
		{Address: AddrWriteFree, Name: "vexSerialWriteFree", Handler: d.writeFree,
			Sig: jumptable.Fn(jumptable.RetInt, jumptable.Uint)},

		{Address: AddrPrintf, Name: "vex_printf", Handler: d.printf, Sig: printfSig},
		{Address: AddrSprintf, Name: "vex_sprintf", Handler: sprintf, Sig: sprintfSig},
		{Address: AddrSnprintf, Name: "vex_snprintf", Handler: snprintf, Sig: snprintfSig},
		{Address: AddrVprintf, Name: "vex_vprintf", Handler: d.printf, Sig: printfSig},
		{Address: AddrVsprintf, Name: "vex_vsprintf", Handler: sprintf, Sig: sprintfSig},
		{Address: AddrVsnprintf, Name: "vex_vsnprintf", Handler: snprintf, Sig: snprintfSig},
	}
}

// Register binds the serial slots of d into reg.
func Register(reg *jumptable.Registry, d *Device) error {
	for _, s := range d.Slots() {
		if err := reg.Insert(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) writeChar(c *jumptable.Call) (uint64, error) {
	return jumptable.I32(int32(d.Write(c.Uint(0), []byte{byte(c.Uint(1))}))), nil
}

func (d *Device) writeBuffer(c *jumptable.Call) (uint64, error) {
	return jumptable.I32(int32(d.Write(c.Uint(0), c.Buf(1)))), nil
}

func (d *Device) readChar(c *jumptable.Call) (uint64, error) {
	return jumptable.I32(int32(d.Read(c.Uint(0)))), nil
}

func (d *Device) peekChar(c *jumptable.Call) (uint64, error) {
	return jumptable.I32(int32(d.Peek(c.Uint(0)))), nil
}

func (d *Device) writeFree(c *jumptable.Call) (uint64, error) {
	return jumptable.I32(int32(d.Free(c.Uint(0)))), nil
}

// printf formats to stdio. The result is the formatted length, as C returns,
// even when the output buffer truncates it.
func (d *Device) printf(c *jumptable.Call) (uint64, error) {
	s, err := printf.Format(c.Str(0), printf.NewVaList(c.Mem, c.Ptr(1)))
	if err != nil {
		return 0, err
	}
	d.Write(Stdio, []byte(s))
	return jumptable.I32(int32(len(s))), nil
}

func sprintf(c *jumptable.Call) (uint64, error) {
	s, err := printf.Format(c.Str(1), printf.NewVaList(c.Mem, c.Ptr(2)))
	if err != nil {
		return 0, err
	}
	if _, err := c.Mem.WriteCString(c.Ptr(0), s, uint32(len(s))+1); err != nil {
		return 0, err
	}
	return jumptable.I32(int32(len(s))), nil
}

func snprintf(c *jumptable.Call) (uint64, error) {
	s, err := printf.Format(c.Str(2), printf.NewVaList(c.Mem, c.Ptr(3)))
	if err != nil {
		return 0, err
	}
	if _, err := c.Mem.WriteCString(c.Ptr(0), s, c.Uint(1)); err != nil {
		return 0, err
	}
	return jumptable.I32(int32(len(s))), nil
}
