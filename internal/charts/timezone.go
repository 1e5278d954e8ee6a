package charts

import "time"

// MarketTime returns Asia/Shanghai, falling back to fixed CST if tzdata is missing.
func MarketTime() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

var dateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.RFC3339, "20060102"}

// parseDate reads a sample date in the market zone.
func parseDate(s string) (time.Time, bool) {
	loc := MarketTime()
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
