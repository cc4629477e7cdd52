// Package display emulates the brain's 480x272 touchscreen.
//
// Guest drawing calls mutate a back buffer. Nothing is externally visible
// until the scheduler calls Flush, which publishes a Frame. In immediate
// mode the frame is the back buffer as it stands; after the guest first
// calls vexDisplayRender the device is double-buffered and the frame is the
// snapshot taken by the most recent render.
package display

import (
	"image"
	"image/color"
	"time"
)

// Screen geometry.
const (
	Width        = 480
	Height       = 272
	HeaderHeight = 32
)

// Color is a 0xRRGGBB value as the SDK passes it.
type Color uint32

const (
	Black       Color = 0x000000
	White       Color = 0xFFFFFF
	HeaderColor Color = 0x0099CC
)

// RGBA converts c to an opaque color.RGBA.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: 0xff}
}

// ColorOf converts any color to the SDK representation.
func ColorOf(c color.Color) Color {
	r, g, b, _ := c.RGBA()
	return Color(r>>8)<<16 | Color(g>>8)<<8 | Color(b>>8)
}

// Screen is the full display rectangle.
var Screen = image.Rect(0, 0, Width, Height)

// Option configures a Device.
type Option func(*Device)

// WithInverted selects black on white defaults, as the code signature's
// invert-graphics option requests.
func WithInverted(inverted bool) Option {
	return func(d *Device) { d.inverted = inverted }
}

// Device holds the display state. It is owned by the simulation goroutine.
type Device struct {
	back  *image.RGBA
	snap  *image.RGBA
	last  Frame
	clips map[int32]image.Rectangle
	font  string

	fg, bg    Color
	textScale float64

	seq            uint64
	inverted       bool
	doubleBuffered bool
	dirty          bool
}

// New creates a display cleared to the default background.
func New(opts ...Option) *Device {
	d := &Device{
		back:      image.NewRGBA(Screen),
		clips:     map[int32]image.Rectangle{0: Screen},
		font:      "monospace",
		textScale: 1,
		dirty:     true,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.fg, d.bg = d.Defaults()
	d.fill(Screen, d.bg)
	return d
}

// Defaults returns the default foreground and background colors.
func (d *Device) Defaults() (fg, bg Color) {
	if d.inverted {
		return Black, White
	}
	return White, Black
}

func (d *Device) Foreground() Color     { return d.fg }
func (d *Device) Background() Color     { return d.bg }
func (d *Device) SetForeground(c Color) { d.fg = c & 0xFFFFFF }
func (d *Device) SetBackground(c Color) { d.bg = c & 0xFFFFFF }

// DoubleBuffered reports whether the guest has called Render.
func (d *Device) DoubleBuffered() bool { return d.doubleBuffered }

// Clip returns the active clip region.
func (d *Device) Clip() image.Rectangle { return d.clips[0] }

// SetClip sets the active clip region from inclusive corners.
func (d *Device) SetClip(x1, y1, x2, y2 int) {
	d.SetClipIndex(0, x1, y1, x2, y2)
}

// SetClipIndex sets the clip region of a task. Only task 0, the guest's
// main task, draws.
func (d *Device) SetClipIndex(index int32, x1, y1, x2, y2 int) {
	d.clips[index] = Rect(x1, y1, x2, y2).Intersect(Screen)
}

// Render captures the back buffer and switches to double-buffered mode.
func (d *Device) Render() {
	if d.snap == nil {
		d.snap = image.NewRGBA(Screen)
	}
	copy(d.snap.Pix, d.back.Pix)
	d.doubleBuffered = true
	d.dirty = true
}

// DisableDoubleBuffer returns to immediate mode.
func (d *Device) DisableDoubleBuffer() {
	d.doubleBuffered = false
	d.snap = nil
	d.dirty = true
}

// Flush publishes the visible image as a new Frame. It reports false, and
// returns the previous frame, when nothing visible changed since the last
// flush.
func (d *Device) Flush(elapsed time.Duration) (Frame, bool) {
	if !d.dirty {
		return d.last, false
	}
	src := d.back
	if d.doubleBuffered && d.snap != nil {
		src = d.snap
	}
	img := image.NewRGBA(Screen)
	copy(img.Pix, src.Pix)
	d.seq++
	d.last = Frame{img: img, Seq: d.seq, Elapsed: elapsed}
	d.dirty = false
	return d.last, true
}

// Frame returns the most recently flushed frame.
func (d *Device) Frame() Frame { return d.last }

// touched records a back buffer mutation.
func (d *Device) touched() {
	if !d.doubleBuffered {
		d.dirty = true
	}
}
