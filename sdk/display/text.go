package display

import (
	"image"
	"strings"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Font selects a text size.
type Font int

const (
	FontSmall Font = iota
	FontNormal
	FontBig
)

// Text layout.
const (
	LineHeight    = 20
	BigLineHeight = 40
)

var face = basicfont.Face7x13

func (f Font) scale() int {
	if f == FontBig {
		return 2
	}
	return 1
}

// TextWidth returns the pixel width of s in font f.
func TextWidth(s string, f Font) int {
	return font.MeasureString(face, printable(s)).Ceil() * f.scale()
}

// TextHeight returns the pixel height of a line in font f.
func TextHeight(f Font) int {
	return face.Height * f.scale()
}

// LineY returns the top of a text line.
func LineY(line int, f Font) int {
	if f == FontBig {
		return line*BigLineHeight + HeaderHeight
	}
	return line*LineHeight + HeaderHeight
}

// printable drops control characters the font cannot draw.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// drawString renders s with its top-left corner at (x, y), at 1x scale.
func drawString(dst *image.RGBA, x, y int, s string, c Color) {
	dr := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c.RGBA()),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	dr.DrawString(s)
}

// Text draws s with its top-left corner at (x, y). Opaque text first fills
// its bounding box with the background color.
func (d *Device) Text(x, y int, s string, f Font, opaque bool) {
	s = printable(s)
	clip := d.Clip()
	w, h := TextWidth(s, f), TextHeight(f)
	box := image.Rect(x, y, x+w, y+h)
	if box.Intersect(clip).Empty() {
		return
	}
	defer d.touched()
	if opaque {
		d.fill(box.Intersect(clip), d.bg)
	}
	dst, ok := d.back.SubImage(clip).(*image.RGBA)
	if !ok {
		return
	}
	if f.scale() == 1 {
		drawString(dst, x, y, s, d.fg)
		return
	}
	// render at 1x and scale up
	small := image.NewRGBA(image.Rect(0, 0, w/f.scale(), h/f.scale()))
	drawString(small, 0, 0, s, d.fg)
	xdraw.NearestNeighbor.Scale(dst, box, small, small.Bounds(), xdraw.Over, nil)
}

// TextFont returns the font plain text slots use, derived from the
// vexDisplayTextSize scale.
func (d *Device) TextFont() Font {
	switch {
	case d.textScale >= 2:
		return FontBig
	case d.textScale < 1:
		return FontSmall
	}
	return FontNormal
}

// SetTextSize sets the text scale to n/d. A zero denominator is ignored.
func (d *Device) SetTextSize(n, den uint32) {
	if den == 0 {
		return
	}
	d.textScale = float64(n) / float64(den)
}

// SetFont records the named font. Only the built-in monospace face is
// available, so other names render with it.
func (d *Device) SetFont(name string) {
	if name != d.font {
		Logger().Debug("font selected", zap.String("font", name))
	}
	d.font = name
}

// FontName returns the last selected font name.
func (d *Device) FontName() string { return d.font }

// PrintLine draws text on a numbered line at the left edge.
func (d *Device) PrintLine(line int, s string, f Font) {
	d.Text(0, LineY(line, f), s, f, true)
}

// PrintCentered draws text horizontally centered on a numbered line.
func (d *Device) PrintCentered(line int, s string, f Font) {
	d.Text((Width-TextWidth(s, f))/2, LineY(line, f), s, f, true)
}
