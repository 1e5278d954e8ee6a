package charts

import (
	"sync"
	"time"
)

// Chart is one rendered chart bound to a canvas.
type Chart struct {
	Kind      string
	Canvas    string
	Seq       uint64
	CreatedAt time.Time

	mu       sync.Mutex
	image    []byte
	disposed bool
}

func newChart(kind string, img []byte) *Chart {
	return &Chart{Kind: kind, CreatedAt: time.Now(), image: img}
}

// Image returns the PNG bytes, or false once the chart is disposed.
func (c *Chart) Image() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, false
	}
	img := make([]byte, len(c.image))
	copy(img, c.image)
	return img, true
}

// Dispose releases the image. Safe to call more than once.
func (c *Chart) Dispose() {
	c.mu.Lock()
	c.image = nil
	c.disposed = true
	c.mu.Unlock()
}

func (c *Chart) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Registry holds at most one live chart per canvas id.
type Registry struct {
	mu     sync.Mutex
	seq    uint64
	charts map[string]*Chart
}

func NewRegistry() *Registry {
	return &Registry{charts: map[string]*Chart{}}
}

// Replace disposes whatever chart is bound to canvas, then binds c.
func (r *Registry) Replace(canvas string, c *Chart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.charts[canvas]; ok && old != c {
		old.Dispose()
	}
	r.seq++
	c.Canvas = canvas
	c.Seq = r.seq
	r.charts[canvas] = c
}

// Get returns the live chart bound to canvas.
func (r *Registry) Get(canvas string) (*Chart, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.charts[canvas]
	return c, ok
}

// Release disposes and unbinds the chart on canvas, if any.
func (r *Registry) Release(canvas string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charts[canvas]; ok {
		c.Dispose()
		delete(r.charts, canvas)
	}
}

// Live counts undisposed charts across all canvases.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.charts {
		if !c.Disposed() {
			n++
		}
	}
	return n
}
