package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// resolveWindow turns a trailing window like 30d, 2w, 6m or 1y into a
// start/end date pair ending on now's date.
func resolveWindow(window string, now time.Time) (string, string, error) {
	window = strings.ToLower(strings.TrimSpace(window))
	if len(window) < 2 {
		return "", "", fmt.Errorf("invalid window format: %q (use format like 30d, 2w, 6m, 1y)", window)
	}
	unit := window[len(window)-1]
	n, err := strconv.Atoi(window[:len(window)-1])
	if err != nil || n <= 0 {
		return "", "", fmt.Errorf("invalid window format: %q (use format like 30d, 2w, 6m, 1y)", window)
	}

	var start time.Time
	switch unit {
	case 'd':
		start = now.AddDate(0, 0, -n)
	case 'w':
		start = now.AddDate(0, 0, -7*n)
	case 'm':
		start = now.AddDate(0, -n, 0)
	case 'y':
		start = now.AddDate(-n, 0, 0)
	default:
		return "", "", fmt.Errorf("invalid window format: %q (use format like 30d, 2w, 6m, 1y)", window)
	}
	return start.Format(dateLayout), now.Format(dateLayout), nil
}

func isWindow(s string) bool {
	_, _, err := resolveWindow(s, time.Time{})
	return err == nil
}

func isDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
