package charts

// SampleStep is the stride used to thin long value series before drawing.
const SampleStep = 7

// Downsample keeps every step-th element starting at index 0, so the
// result has ceil(len(in)/step) elements.
func Downsample[T any](in []T, step int) []T {
	if step <= 1 {
		return append([]T(nil), in...)
	}
	out := make([]T, 0, (len(in)+step-1)/step)
	for i := 0; i < len(in); i += step {
		out = append(out, in[i])
	}
	return out
}
