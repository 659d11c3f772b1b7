package compositor

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// fillRoundRect fills r with corners rounded to radius pixels.
func fillRoundRect(dst *image.RGBA, r image.Rectangle, radius int, c color.RGBA) {
	r = r.Intersect(dst.Rect)
	radius = min(radius, r.Dx()/2, r.Dy()/2)
	rr := radius * radius

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dx, dy := 0, 0
			switch {
			case x < r.Min.X+radius:
				dx = r.Min.X + radius - x
			case x >= r.Max.X-radius:
				dx = x - (r.Max.X - radius - 1)
			}
			switch {
			case y < r.Min.Y+radius:
				dy = r.Min.Y + radius - y
			case y >= r.Max.Y-radius:
				dy = y - (r.Max.Y - radius - 1)
			}
			if dx*dx+dy*dy <= rr {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}

// drawString draws s with its baseline origin at (x, y).
func drawString(dst draw.Image, face font.Face, s string, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
