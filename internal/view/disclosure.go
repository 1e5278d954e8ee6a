package view

// PreviewSize is how many items a collapsed disclosure shows.
const PreviewSize = 10

// State of a Disclosure.
type State int

const (
	Collapsed State = iota
	Expanded
)

func (s State) String() string {
	if s == Expanded {
		return "expanded"
	}
	return "collapsed"
}

// Disclosure renders a bounded preview of a sequence and toggles between
// the preview and the full sequence. The shown slice is grown and cut the
// way a list element is: expanding appends items[limit:], collapsing drops
// everything past position limit.
type Disclosure[T any] struct {
	items []T
	limit int
	shown []T
	state State
}

// NewDisclosure starts collapsed over items with the given preview limit.
// A non-positive limit uses PreviewSize.
func NewDisclosure[T any](items []T, limit int) *Disclosure[T] {
	if limit <= 0 {
		limit = PreviewSize
	}
	n := min(len(items), limit)
	shown := make([]T, n, len(items))
	copy(shown, items[:n])
	return &Disclosure[T]{items: items, limit: limit, shown: shown}
}

// ControlVisible reports whether the toggle control is shown at all.
func (d *Disclosure[T]) ControlVisible() bool {
	return len(d.items) > d.limit
}

// Toggle flips between collapsed and expanded. It is a no-op when the
// control is hidden.
func (d *Disclosure[T]) Toggle() State {
	if !d.ControlVisible() {
		return d.state
	}
	switch d.state {
	case Collapsed:
		d.shown = append(d.shown, d.items[d.limit:]...)
		d.state = Expanded
	case Expanded:
		clear(d.shown[d.limit:])
		d.shown = d.shown[:d.limit]
		d.state = Collapsed
	}
	return d.state
}

func (d *Disclosure[T]) State() State { return d.state }

// Visible returns the items currently shown.
func (d *Disclosure[T]) Visible() []T {
	out := make([]T, len(d.shown))
	copy(out, d.shown)
	return out
}

// Hidden is the number of items not shown in the collapsed preview.
func (d *Disclosure[T]) Hidden() int {
	if !d.ControlVisible() {
		return 0
	}
	return len(d.items) - d.limit
}

// Len is the length of the full sequence.
func (d *Disclosure[T]) Len() int { return len(d.items) }

// Label is the text of the toggle control.
func (d *Disclosure[T]) Label() string {
	if d.state == Expanded {
		return "Show less"
	}
	return "Show more"
}
