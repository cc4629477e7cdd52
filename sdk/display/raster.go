package display

import (
	"image"
	"math"
)

// Rect converts inclusive corner coordinates in any order to a rectangle.
func Rect(x1, y1, x2, y2 int) image.Rectangle {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	// keep Max+1 from overflowing
	x2 = min(x2, math.MaxInt32-1)
	y2 = min(y2, math.MaxInt32-1)
	return image.Rect(x1, y1, x2+1, y2+1)
}

func (d *Device) fill(r image.Rectangle, c Color) {
	r = r.Intersect(d.back.Rect)
	if r.Empty() {
		return
	}
	rgba := c.RGBA()
	row := d.back.PixOffset(r.Min.X, r.Min.Y)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		p := d.back.Pix[row : row+4*r.Dx()]
		for i := 0; i < len(p); i += 4 {
			p[i], p[i+1], p[i+2], p[i+3] = rgba.R, rgba.G, rgba.B, rgba.A
		}
		row += d.back.Stride
	}
}

func (d *Device) set(x, y int, c Color) {
	if !(image.Point{X: x, Y: y}).In(d.Clip()) {
		return
	}
	d.back.SetRGBA(x, y, c.RGBA())
}

// span fills x1..x2 inclusive on row y, clipped.
func (d *Device) span(x1, x2, y int, c Color) {
	d.fill(image.Rect(x1, y, x2+1, y+1).Intersect(d.Clip()), c)
}

// Pixel returns the back buffer color at (x, y), or 0 off screen.
func (d *Device) Pixel(x, y int) Color {
	if !(image.Point{X: x, Y: y}).In(Screen) {
		return 0
	}
	return ColorOf(d.back.RGBAAt(x, y))
}

// Erase fills the clip region with the default background color. The
// color set with SetBackground is not used.
func (d *Device) Erase() {
	_, bg := d.Defaults()
	d.fill(d.Clip(), bg)
	d.touched()
}

// SetPixel draws one pixel in the foreground color.
func (d *Device) SetPixel(x, y int) {
	d.set(x, y, d.fg)
	d.touched()
}

// ClearPixel draws one pixel in the background color.
func (d *Device) ClearPixel(x, y int) {
	d.set(x, y, d.bg)
	d.touched()
}

// Line draws a line in the foreground color, or the background color when
// clear is set.
func (d *Device) Line(x1, y1, x2, y2 int, clear bool) {
	c := d.fg
	if clear {
		c = d.bg
	}
	d.line(x1, y1, x2, y2, c)
	d.touched()
}

func (d *Device) line(x1, y1, x2, y2 int, c Color) {
	clip := d.Clip()
	if clip.Empty() {
		return
	}
	fx1, fy1, fx2, fy2, ok := clipLine(float64(x1), float64(y1), float64(x2), float64(y2), clip)
	if !ok {
		return
	}
	x1, y1 = int(math.Round(fx1)), int(math.Round(fy1))
	x2, y2 = int(math.Round(fx2)), int(math.Round(fy2))

	dx, dy := abs(x2-x1), -abs(y2-y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	e := dx + dy
	for {
		d.set(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x1 += sx
		}
		if e2 <= dx {
			e += dx
			y1 += sy
		}
	}
}

// clipLine trims a segment to r (Liang-Barsky) so that rasterising it is
// bounded by the clip size whatever the input coordinates.
func clipLine(x1, y1, x2, y2 float64, r image.Rectangle) (float64, float64, float64, float64, bool) {
	minX, minY := float64(r.Min.X), float64(r.Min.Y)
	maxX, maxY := float64(r.Max.X-1), float64(r.Max.Y-1)
	dx, dy := x2-x1, y2-y1
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, x1 - minX},
		{dx, maxX - x1},
		{-dy, y1 - minY},
		{dy, maxY - y1},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = max(t0, t)
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = min(t1, t)
		}
	}
	return x1 + t0*dx, y1 + t0*dy, x1 + t1*dx, y1 + t1*dy, true
}

// Rect modes.
const (
	Stroke = iota
	Fill
	Clear
)

// Rectangle draws a rectangle outline (Stroke), fills it with the
// foreground color (Fill) or with the background color (Clear).
func (d *Device) Rectangle(x1, y1, x2, y2 int, mode int) {
	r := Rect(x1, y1, x2, y2)
	clip := d.Clip()
	switch mode {
	case Fill:
		d.fill(r.Intersect(clip), d.fg)
	case Clear:
		d.fill(r.Intersect(clip), d.bg)
	default:
		top, bottom := r.Min.Y, r.Max.Y-1
		left, right := r.Min.X, r.Max.X-1
		d.fill(image.Rect(left, top, right+1, top+1).Intersect(clip), d.fg)
		d.fill(image.Rect(left, bottom, right+1, bottom+1).Intersect(clip), d.fg)
		d.fill(image.Rect(left, top, left+1, bottom+1).Intersect(clip), d.fg)
		d.fill(image.Rect(right, top, right+1, bottom+1).Intersect(clip), d.fg)
	}
	d.touched()
}

// Circle draws a one pixel ring (Stroke), a filled disc (Fill) or a disc in
// the background color (Clear). Negative radii are treated as positive.
// Rows are scanned within the clip region only.
func (d *Device) Circle(cx, cy, r int, mode int) {
	defer d.touched()
	c := d.fg
	if mode == Clear {
		c = d.bg
	}
	if r < 0 {
		r = -r
	}
	if r == 0 {
		d.set(cx, cy, c)
		return
	}
	clip := d.Clip()
	bounds := image.Rect(cx-r, cy-r, cx+r+1, cy+r+1)
	rows := bounds.Intersect(clip)
	if rows.Empty() {
		return
	}
	r2 := int64(r) * int64(r)
	in2 := int64(r-1) * int64(r-1)
	for y := rows.Min.Y; y < rows.Max.Y; y++ {
		dy := int64(y - cy)
		outer := int(isqrt(r2 - dy*dy))
		if mode != Stroke || dy*dy > in2 {
			d.span(cx-outer, cx+outer, y, c)
			continue
		}
		inner := int(isqrt(in2 - dy*dy))
		d.span(cx-outer, cx-inner-1, y, c)
		d.span(cx+inner+1, cx+outer, y, c)
	}
}

func isqrt(v int64) int64 {
	if v <= 0 {
		return 0
	}
	s := int64(math.Sqrt(float64(v)))
	for s*s > v {
		s--
	}
	for (s+1)*(s+1) <= v {
		s++
	}
	return s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ScrollRect moves the region's rows up by lines pixels (down when
// negative). Vacated rows are filled with the background color.
func (d *Device) ScrollRect(x1, y1, x2, y2, lines int) {
	r := Rect(x1, y1, x2, y2).Intersect(d.Clip())
	if r.Empty() || lines == 0 {
		return
	}
	defer d.touched()
	if abs(lines) >= r.Dy() {
		d.fill(r, d.bg)
		return
	}
	n := 4 * r.Dx()
	row := func(y int) []byte {
		off := d.back.PixOffset(r.Min.X, y)
		return d.back.Pix[off : off+n]
	}
	if lines > 0 {
		for y := r.Min.Y; y < r.Max.Y-lines; y++ {
			copy(row(y), row(y+lines))
		}
		d.fill(image.Rect(r.Min.X, r.Max.Y-lines, r.Max.X, r.Max.Y), d.bg)
		return
	}
	lines = -lines
	for y := r.Max.Y - 1; y >= r.Min.Y+lines; y-- {
		copy(row(y), row(y-lines))
	}
	d.fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+lines), d.bg)
}

// Scroll scrolls the full width of the screen from row start down.
func (d *Device) Scroll(start, lines int) {
	d.ScrollRect(0, start, Width-1, Height-1, lines)
}

// PixelLoader returns count 0x00RRGGBB words of a guest pixel buffer
// starting at word index first.
type PixelLoader func(first, count int) ([]uint32, error)

// CopyRect blits a guest pixel buffer into the rectangle. Word
// (y-top)*stride + (x-left) holds pixel (x, y). Only the words backing
// visible pixels are loaded.
func (d *Device) CopyRect(x1, y1, x2, y2, stride int, load PixelLoader) error {
	r := Rect(x1, y1, x2, y2)
	if stride <= 0 {
		stride = r.Dx()
	}
	vis := r.Intersect(d.Clip())
	if vis.Empty() {
		return nil
	}
	first := (vis.Min.Y-r.Min.Y)*stride + (vis.Min.X - r.Min.X)
	last := (vis.Max.Y-1-r.Min.Y)*stride + (vis.Max.X - 1 - r.Min.X)
	words, err := load(first, last-first+1)
	if err != nil {
		return err
	}
	for y := vis.Min.Y; y < vis.Max.Y; y++ {
		base := (y-r.Min.Y)*stride - first
		for x := vis.Min.X; x < vis.Max.X; x++ {
			i := base + x - r.Min.X
			if i >= 0 && i < len(words) {
				d.back.SetRGBA(x, y, Color(words[i]).RGBA())
			}
		}
	}
	d.touched()
	return nil
}
