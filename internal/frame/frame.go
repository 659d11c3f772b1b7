// Package frame holds rendered dashboard frames and the single-slot cache that
// hands the latest one to every consumer.
package frame

import (
	"image"
	"image/color"
	"image/draw"
	"sync/atomic"
	"time"
)

// Frame is one rendered dashboard image. A published frame is never written
// again; consumers may read Image concurrently without locking.
type Frame struct {
	Image      *image.RGBA
	Seq        uint64
	RenderedAt time.Time
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Image.Rect.Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Image.Rect.Dy() }

// AppendBGRA appends the frame as packed 8-bit B, G, R, A samples, the
// rawvideo layout ffmpeg reads with -pix_fmt bgra.
func (f *Frame) AppendBGRA(dst []byte) []byte {
	img := f.Image
	w, h := img.Rect.Dx(), img.Rect.Dy()
	n := len(dst)
	if need := n + w*h*4; cap(dst) < need {
		grown := make([]byte, n, need)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:n+w*h*4]
	out := dst[n:]

	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		o := out[y*w*4 : (y+1)*w*4]
		for x := 0; x < len(row); x += 4 {
			o[x] = row[x+2]
			o[x+1] = row[x+1]
			o[x+2] = row[x]
			o[x+3] = row[x+3]
		}
	}
	return dst
}

// Blank returns an opaque black frame of the given size.
func Blank(width, height int) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Rect, image.NewUniform(color.Black), image.Point{}, draw.Src)
	return &Frame{Image: img}
}

// Cache is a single overwrite-on-publish slot. Publish and Load never block
// each other and a reader always sees one whole frame.
type Cache struct {
	current     atomic.Pointer[Frame]
	placeholder *Frame
	published   atomic.Uint64
}

// NewCache returns a cache that serves a blank frame until the first Publish.
func NewCache(width, height int) *Cache {
	return &Cache{placeholder: Blank(width, height)}
}

// Publish makes f the frame returned by Load. Last writer wins.
func (c *Cache) Publish(f *Frame) {
	c.current.Store(f)
	c.published.Add(1)
}

// Load returns the most recently published frame, or the blank placeholder.
func (c *Cache) Load() *Frame {
	if f := c.current.Load(); f != nil {
		return f
	}
	return c.placeholder
}

// Published reports how many frames have been published.
func (c *Cache) Published() uint64 {
	return c.published.Load()
}
