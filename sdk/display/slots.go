package display

import (
	"encoding/binary"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/sdk/printf"
)

// Jump table addresses.
const (
	AddrForegroundColor      uint32 = 0x640
	AddrBackgroundColor      uint32 = 0x644
	AddrErase                uint32 = 0x648
	AddrScroll               uint32 = 0x64c
	AddrScrollRect           uint32 = 0x650
	AddrCopyRect             uint32 = 0x654
	AddrPixelSet             uint32 = 0x658
	AddrPixelClear           uint32 = 0x65c
	AddrLineDraw             uint32 = 0x660
	AddrLineClear            uint32 = 0x664
	AddrRectDraw             uint32 = 0x668
	AddrRectClear            uint32 = 0x66c
	AddrRectFill             uint32 = 0x670
	AddrCircleDraw           uint32 = 0x674
	AddrCircleClear          uint32 = 0x678
	AddrCircleFill           uint32 = 0x67c
	AddrVPrintf              uint32 = 0x680
	AddrVString              uint32 = 0x684
	AddrVStringAt            uint32 = 0x688
	AddrVBigString           uint32 = 0x68c
	AddrVBigStringAt         uint32 = 0x690
	AddrVCenteredString      uint32 = 0x694
	AddrVBigCenteredString   uint32 = 0x698
	AddrTextSize             uint32 = 0x6a8
	AddrVSmallStringAt       uint32 = 0x6b0
	AddrFontNamedSet         uint32 = 0x6b4
	AddrForegroundColorGet   uint32 = 0x6b8
	AddrBackgroundColorGet   uint32 = 0x6bc
	AddrStringWidthGet       uint32 = 0x6c0
	AddrStringHeightGet      uint32 = 0x6c4
	AddrClipRegionSet        uint32 = 0x794
	AddrRender               uint32 = 0x7a0
	AddrDoubleBufferDisable  uint32 = 0x7a4
	AddrClipRegionSetWithIdx uint32 = 0x7a8
)

// Slots returns the display slots bound to d.
func (d *Device) Slots() []jumptable.Slot {
	const (
		i = jumptable.Int
		u = jumptable.Uint
		p = jumptable.Ptr
		s = jumptable.Str
	)
	void := func(args ...jumptable.ArgKind) jumptable.Sig { return jumptable.Fn(jumptable.Void, args...) }

	return []jumptable.Slot{
		{Address: AddrForegroundColor, Name: "vexDisplayForegroundColor", Sig: void(u), Handler: d.setForeground},
		{Address: AddrBackgroundColor, Name: "vexDisplayBackgroundColor", Sig: void(u), Handler: d.setBackground},
		{Address: AddrErase, Name: "vexDisplayErase", Sig: void(), Handler: d.erase},
		{Address: AddrScroll, Name: "vexDisplayScroll", Sig: void(i, i), Handler: d.scroll},
		{Address: AddrScrollRect, Name: "vexDisplayScrollRect", Sig: void(i, i, i, i, i), Handler: d.scrollRect},
		{Address: AddrCopyRect, Name: "vexDisplayCopyRect", Sig: void(i, i, i, i, p, u), Handler: d.copyRect},
		{Address: AddrPixelSet, Name: "vexDisplayPixelSet", Sig: void(i, i), Handler: d.pixelSet},
		{Address: AddrPixelClear, Name: "vexDisplayPixelClear", Sig: void(i, i), Handler: d.pixelClear},
		{Address: AddrLineDraw, Name: "vexDisplayLineDraw", Sig: void(i, i, i, i), Handler: d.lineHandler(false)},
		{Address: AddrLineClear, Name: "vexDisplayLineClear", Sig: void(i, i, i, i), Handler: d.lineHandler(true)},
		{Address: AddrRectDraw, Name: "vexDisplayRectDraw", Sig: void(i, i, i, i), Handler: d.rectHandler(Stroke)},
		{Address: AddrRectClear, Name: "vexDisplayRectClear", Sig: void(i, i, i, i), Handler: d.rectHandler(Clear)},
		{Address: AddrRectFill, Name: "vexDisplayRectFill", Sig: void(i, i, i, i), Handler: d.rectHandler(Fill)},
		{Address: AddrCircleDraw, Name: "vexDisplayCircleDraw", Sig: void(i, i, i), Handler: d.circleHandler(Stroke)},
		{Address: AddrCircleClear, Name: "vexDisplayCircleClear", Sig: void(i, i, i), Handler: d.circleHandler(Clear)},
		{Address: AddrCircleFill, Name: "vexDisplayCircleFill", Sig: void(i, i, i), Handler: d.circleHandler(Fill)},

		{Address: AddrVPrintf, Name: "vexDisplayVPrintf", Sig: void(i, i, u, s, p), Handler: d.vprintf},
		{Address: AddrVString, Name: "vexDisplayVString", Sig: void(i, s, p), Handler: d.lineText(FontNormal, false)},
		{Address: AddrVStringAt, Name: "vexDisplayVStringAt", Sig: void(i, i, s, p), Handler: d.textAt(-1)},
		{Address: AddrVBigString, Name: "vexDisplayVBigString", Sig: void(i, s, p), Handler: d.lineText(FontBig, false)},
		{Address: AddrVBigStringAt, Name: "vexDisplayVBigStringAt", Sig: void(i, i, s, p), Handler: d.textAt(FontBig)},
		{Address: AddrVCenteredString, Name: "vexDisplayVCenteredString", Sig: void(i, s, p), Handler: d.lineText(FontNormal, true)},
		{Address: AddrVBigCenteredString, Name: "vexDisplayVBigCenteredString", Sig: void(i, s, p), Handler: d.lineText(FontBig, true)},
		{Address: AddrVSmallStringAt, Name: "vexDisplayVSmallStringAt", Sig: void(i, i, s, p), Handler: d.textAt(FontSmall)},

		{Address: AddrTextSize, Name: "vexDisplayTextSize", Sig: void(u, u), Handler: d.textSize},
		{Address: AddrFontNamedSet, Name: "vexDisplayFontNamedSet", Sig: void(s), Handler: d.fontNamedSet},
		{Address: AddrForegroundColorGet, Name: "vexDisplayForegroundColorGet", Sig: jumptable.Fn(jumptable.RetUint), Handler: d.foregroundGet},
		{Address: AddrBackgroundColorGet, Name: "vexDisplayBackgroundColorGet", Sig: jumptable.Fn(jumptable.RetUint), Handler: d.backgroundGet},
		{Address: AddrStringWidthGet, Name: "vexDisplayStringWidthGet", Sig: jumptable.Fn(jumptable.RetInt, s), Handler: d.stringWidth},
		{Address: AddrStringHeightGet, Name: "vexDisplayStringHeightGet", Sig: jumptable.Fn(jumptable.RetInt, s), Handler: d.stringHeight},

		{Address: AddrClipRegionSet, Name: "vexDisplayClipRegionSet", Sig: void(i, i, i, i), Handler: d.clipRegionSet},
		{Address: AddrRender, Name: "vexDisplayRender", Sig: void(i, i), Handler: d.render},
		{Address: AddrDoubleBufferDisable, Name: "vexDisplayDoubleBufferDisable", Sig: void(), Handler: d.doubleBufferDisable},
		{Address: AddrClipRegionSetWithIdx, Name: "vexDisplayClipRegionSetWithIndex", Sig: void(i, i, i, i, i), Handler: d.clipRegionSetWithIndex},
	}
}

// Register binds the display slots of d into reg.
func Register(reg *jumptable.Registry, d *Device) error {
	for _, s := range d.Slots() {
		if err := reg.Insert(s); err != nil {
			return err
		}
	}
	return nil
}

func arg(c *jumptable.Call, n int) int { return int(c.Int(n)) }

func (d *Device) setForeground(c *jumptable.Call) (uint64, error) {
	d.SetForeground(Color(c.Uint(0)))
	return 0, nil
}

func (d *Device) setBackground(c *jumptable.Call) (uint64, error) {
	d.SetBackground(Color(c.Uint(0)))
	return 0, nil
}

func (d *Device) foregroundGet(*jumptable.Call) (uint64, error) {
	return jumptable.U32(uint32(d.fg)), nil
}

func (d *Device) backgroundGet(*jumptable.Call) (uint64, error) {
	return jumptable.U32(uint32(d.bg)), nil
}

func (d *Device) erase(*jumptable.Call) (uint64, error) {
	d.Erase()
	return 0, nil
}

func (d *Device) scroll(c *jumptable.Call) (uint64, error) {
	d.Scroll(arg(c, 0), arg(c, 1))
	return 0, nil
}

func (d *Device) scrollRect(c *jumptable.Call) (uint64, error) {
	d.ScrollRect(arg(c, 0), arg(c, 1), arg(c, 2), arg(c, 3), arg(c, 4))
	return 0, nil
}

func (d *Device) copyRect(c *jumptable.Call) (uint64, error) {
	base := uint64(c.Ptr(4))
	load := func(first, count int) ([]uint32, error) {
		off, n := base+4*uint64(first), 4*uint64(count)
		if off+n > uint64(c.Mem.Size()) {
			return nil, errors.MemoryFault("copy rect", off, n, c.Mem.Size())
		}
		raw, err := c.Mem.Read(uint32(off), uint32(n))
		if err != nil {
			return nil, err
		}
		words := make([]uint32, count)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(raw[4*i:])
		}
		return words, nil
	}
	return 0, d.CopyRect(arg(c, 0), arg(c, 1), arg(c, 2), arg(c, 3), int(c.Uint(5)), load)
}

func (d *Device) pixelSet(c *jumptable.Call) (uint64, error) {
	d.SetPixel(arg(c, 0), arg(c, 1))
	return 0, nil
}

func (d *Device) pixelClear(c *jumptable.Call) (uint64, error) {
	d.ClearPixel(arg(c, 0), arg(c, 1))
	return 0, nil
}

func (d *Device) lineHandler(clear bool) jumptable.Handler {
	return func(c *jumptable.Call) (uint64, error) {
		d.Line(arg(c, 0), arg(c, 1), arg(c, 2), arg(c, 3), clear)
		return 0, nil
	}
}

func (d *Device) rectHandler(mode int) jumptable.Handler {
	return func(c *jumptable.Call) (uint64, error) {
		d.Rectangle(arg(c, 0), arg(c, 1), arg(c, 2), arg(c, 3), mode)
		return 0, nil
	}
}

func (d *Device) circleHandler(mode int) jumptable.Handler {
	return func(c *jumptable.Call) (uint64, error) {
		d.Circle(arg(c, 0), arg(c, 1), arg(c, 2), mode)
		return 0, nil
	}
}

// format renders the guest format string at argument i against the
// va_list at argument i+1.
func format(c *jumptable.Call, i int) (string, error) {
	return printf.Format(c.Str(i), printf.NewVaList(c.Mem, c.Ptr(i+1)))
}

func (d *Device) vprintf(c *jumptable.Call) (uint64, error) {
	s, err := format(c, 3)
	if err != nil {
		return 0, err
	}
	d.Text(arg(c, 0), arg(c, 1), s, d.TextFont(), c.Uint(2) != 0)
	return 0, nil
}

func (d *Device) lineText(f Font, centered bool) jumptable.Handler {
	return func(c *jumptable.Call) (uint64, error) {
		s, err := format(c, 1)
		if err != nil {
			return 0, err
		}
		if centered {
			d.PrintCentered(arg(c, 0), s, f)
		} else {
			d.PrintLine(arg(c, 0), s, f)
		}
		return 0, nil
	}
}

// textAt draws at a point. A negative font uses the current text size.
func (d *Device) textAt(f Font) jumptable.Handler {
	return func(c *jumptable.Call) (uint64, error) {
		s, err := format(c, 2)
		if err != nil {
			return 0, err
		}
		font := f
		if font < 0 {
			font = d.TextFont()
		}
		d.Text(arg(c, 0), arg(c, 1), s, font, true)
		return 0, nil
	}
}

func (d *Device) textSize(c *jumptable.Call) (uint64, error) {
	d.SetTextSize(c.Uint(0), c.Uint(1))
	return 0, nil
}

func (d *Device) fontNamedSet(c *jumptable.Call) (uint64, error) {
	d.SetFont(c.Str(0))
	return 0, nil
}

func (d *Device) stringWidth(c *jumptable.Call) (uint64, error) {
	return jumptable.I32(int32(TextWidth(c.Str(0), d.TextFont()))), nil
}

func (d *Device) stringHeight(*jumptable.Call) (uint64, error) {
	return jumptable.I32(int32(TextHeight(d.TextFont()))), nil
}

func (d *Device) clipRegionSet(c *jumptable.Call) (uint64, error) {
	d.SetClip(arg(c, 0), arg(c, 1), arg(c, 2), arg(c, 3))
	return 0, nil
}

func (d *Device) clipRegionSetWithIndex(c *jumptable.Call) (uint64, error) {
	d.SetClipIndex(c.Int(0), arg(c, 1), arg(c, 2), arg(c, 3), arg(c, 4))
	return 0, nil
}

// render snapshots the back buffer. A nonzero runScheduler hands control to
// the scheduler afterwards.
func (d *Device) render(c *jumptable.Call) (uint64, error) {
	d.Render()
	if c.Int(1) != 0 {
		c.RequestYield()
	}
	return 0, nil
}

func (d *Device) doubleBufferDisable(*jumptable.Call) (uint64, error) {
	d.DisableDoubleBuffer()
	return 0, nil
}
