package display

import (
	"fmt"
	"image"
	"time"
)

// Frame is one published display image. Frames are immutable.
type Frame struct {
	img     *image.RGBA
	Seq     uint64
	Elapsed time.Duration
}

// Valid reports whether f holds an image.
func (f Frame) Valid() bool { return f.img != nil }

// Pixel returns the color at (x, y), or 0 off screen or for an empty frame.
func (f Frame) Pixel(x, y int) Color {
	if f.img == nil || !(image.Point{X: x, Y: y}).In(f.img.Rect) {
		return 0
	}
	return ColorOf(f.img.RGBAAt(x, y))
}

// Image returns a copy of the frame. With header set, the status bar is
// composited over the top rows the way the brain draws it: a 0x0099CC bar
// with the program clock.
func (f Frame) Image(header bool) *image.RGBA {
	img := image.NewRGBA(Screen)
	if f.img != nil {
		copy(img.Pix, f.img.Pix)
	}
	if !header {
		return img
	}
	bar := HeaderColor.RGBA()
	for y := 0; y < HeaderHeight; y++ {
		for x := 0; x < Width; x++ {
			img.SetRGBA(x, y, bar)
		}
	}
	clock := Clock(f.Elapsed)
	x := Width - TextWidth(clock, FontNormal) - 8
	y := (HeaderHeight - TextHeight(FontNormal)) / 2
	drawString(img, x, y, clock, White)
	return img
}

// Clock formats an elapsed program time as M:SS.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
