package charts

import (
	"math"

	"fundfolio/internal/api"
)

// filterValid removes samples whose value is negative, NaN or infinite.
func filterValid(in api.ValueSeries) api.ValueSeries {
	out := make(api.ValueSeries, 0, len(in))
	for _, s := range in {
		if s.Value < 0 || math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		out = append(out, s)
	}
	return out
}
