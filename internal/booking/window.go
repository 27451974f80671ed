package booking

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseDate parses a YYYY-MM-DD calendar date at midnight in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return d, nil
}

// Window builds the [start, end) interval for wall-clock times on date in loc.
func Window(date, startHHMM, endHHMM string, loc *time.Location) (start, end time.Time, err error) {
	if start, err = time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+startHHMM, loc); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q %q: %w", date, startHHMM, err)
	}
	if end, err = time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+endHHMM, loc); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q %q: %w", date, endHHMM, err)
	}
	return start, end, nil
}
