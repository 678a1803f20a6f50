package cache

import (
	"slices"
	"sync"

	"github.com/spaceweb/impactsim/internal/mapsurface"
)

// LayerCache tracks the layers currently drawn on a surface, keyed by handle.
// Handles are issued by the cache and never reused for its lifetime.
type LayerCache struct {
	mu     sync.RWMutex
	next   uint64
	layers map[mapsurface.Handle]mapsurface.Layer
}

// NewLayerCache creates an empty LayerCache
func NewLayerCache() *LayerCache {
	return &LayerCache{
		layers: make(map[mapsurface.Handle]mapsurface.Layer),
	}
}

// Add assigns a fresh handle to layer, stores it and returns the stored copy.
func (c *LayerCache) Add(layer mapsurface.Layer) mapsurface.Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	layer.Handle = mapsurface.Handle(c.next)
	c.layers[layer.Handle] = layer
	return layer
}

// Get retrieves a layer by handle
func (c *LayerCache) Get(h mapsurface.Handle) (mapsurface.Layer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.layers[h]
	return l, ok
}

// Delete removes a layer and reports whether it was present.
func (c *LayerCache) Delete(h mapsurface.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.layers[h]
	delete(c.layers, h)
	return ok
}

// Lookup returns the layers for the given handles, skipping unknown ones.
func (c *LayerCache) Lookup(handles []mapsurface.Handle) []mapsurface.Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mapsurface.Layer, 0, len(handles))
	for _, h := range handles {
		if l, ok := c.layers[h]; ok {
			out = append(out, l)
		}
	}
	return out
}

// List returns every layer ordered by handle, i.e. by insertion.
func (c *LayerCache) List() []mapsurface.Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mapsurface.Layer, 0, len(c.layers))
	for _, l := range c.layers {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b mapsurface.Layer) int {
		switch {
		case a.Handle < b.Handle:
			return -1
		case a.Handle > b.Handle:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of live layers
func (c *LayerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layers)
}

// Reset removes every layer. The handle sequence is not rewound.
func (c *LayerCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers = make(map[mapsurface.Handle]mapsurface.Layer)
}
