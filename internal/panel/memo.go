package panel

import (
	"image"
	"sync"
)

type memoKey struct {
	slot     int
	revision uint64
	width    int
	height   int
}

type memoEntry struct {
	key memoKey
	img image.Image
	err error
}

// Memo caches the last rendering for each slot. A slot is re-rendered only
// when the panel revision or size changes, failures included.
type Memo struct {
	renderer Renderer

	mu      sync.Mutex
	entries map[int]memoEntry
	renders int
}

// NewMemo wraps renderer.
func NewMemo(renderer Renderer) *Memo {
	return &Memo{renderer: renderer, entries: make(map[int]memoEntry)}
}

// Render returns the cached image for slot or renders p. fresh reports whether
// the renderer was called.
func (m *Memo) Render(slot int, p Panel, width, height int) (img image.Image, fresh bool, err error) {
	key := memoKey{slot: slot, revision: p.Revision, width: width, height: height}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[slot]; ok && e.key == key {
		return e.img, false, e.err
	}
	img, err = m.renderer.Render(p, width, height)
	m.entries[slot] = memoEntry{key: key, img: img, err: err}
	m.renders++
	return img, true, err
}

// Renders counts calls made to the underlying renderer.
func (m *Memo) Renders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renders
}
