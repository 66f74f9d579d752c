package analytics

import "time"

// Interval is the width of a chart bucket.
type Interval string

const (
	IntervalMinutes Interval = "minutes"
	IntervalHours   Interval = "hours"
	IntervalDays    Interval = "days"
	IntervalMonths  Interval = "months"
	IntervalYears   Interval = "years"
)

const defaultMaxIntervals = 12

var maxIntervals = map[Interval]int{
	IntervalMinutes: 60,
	IntervalHours:   24,
	IntervalDays:    14,
	IntervalMonths:  12,
	IntervalYears:   10,
}

// Bucket layouts, in time.Format notation. Hours keep a literal "00" for the
// minutes.
var bucketFormats = map[Interval]string{
	IntervalMinutes: "2006-01-02T15:04Z07:00",
	IntervalHours:   "2006-01-02T15:00Z07:00",
	IntervalDays:    "2006-01-02",
	IntervalMonths:  "2006-01",
	IntervalYears:   "2006",
}

// MaxIntervals returns how many buckets a chart of the interval spans.
// Unknown intervals get 12.
func MaxIntervals(interval string) int {
	if n, ok := maxIntervals[Interval(interval)]; ok {
		return n
	}
	return defaultMaxIntervals
}

// BucketFormat returns the layout buckets of the interval are rendered with,
// and false when the interval is not supported.
func BucketFormat(interval string) (string, bool) {
	format, ok := bucketFormats[Interval(interval)]
	return format, ok
}

func (i Interval) Supported() bool {
	_, ok := bucketFormats[i]
	return ok
}

// Truncate returns the start of the bucket containing t, in t's location.
// Truncating a truncated time returns it unchanged. Unsupported intervals
// return t as is.
func (i Interval) Truncate(t time.Time) time.Time {
	loc := t.Location()
	switch i {
	case IntervalMinutes:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	case IntervalHours:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	case IntervalDays:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case IntervalMonths:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case IntervalYears:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return t
	}
}

// BucketKey is the epoch seconds of the bucket containing t.
func (i Interval) BucketKey(t time.Time) int64 {
	return i.Truncate(t).Unix()
}

// Shift moves t by n intervals. Calendar units follow time.AddDate
// normalization, so Jan 31 plus one month is Mar 3 (or Mar 2 in leap years).
func (i Interval) Shift(t time.Time, n int) time.Time {
	switch i {
	case IntervalMinutes:
		return t.Add(time.Duration(n) * time.Minute)
	case IntervalHours:
		return t.Add(time.Duration(n) * time.Hour)
	case IntervalDays:
		return t.AddDate(0, 0, n)
	case IntervalMonths:
		return t.AddDate(0, n, 0)
	case IntervalYears:
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}
