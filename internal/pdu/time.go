package pdu

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrBadTime is returned for unparseable SMPP time strings.
var ErrBadTime = errors.New("pdu: unparseable time")

// ParseTime parses an SMPP absolute or relative time string
// ("YYMMDDhhmmsstnnp", 16 characters). Relative times ('R') are offsets
// from now. An empty string means "not set" and parses to the zero time.
func ParseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) != 16 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	fields := make([]int, 6)
	for i := range fields {
		n, err := strconv.Atoi(s[i*2 : i*2+2])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
		}
		fields[i] = n
	}
	year, month, day, hour, min, sec := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]

	switch s[15] {
	case 'R':
		d := time.Duration(year)*365*24*time.Hour +
			time.Duration(month)*30*24*time.Hour +
			time.Duration(day)*24*time.Hour +
			time.Duration(hour)*time.Hour +
			time.Duration(min)*time.Minute +
			time.Duration(sec)*time.Second
		return now.Add(d), nil
	case '+', '-':
		// Offset from UTC in quarter hours.
		qh, err := strconv.Atoi(s[13:15])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
		}
		offset := qh * 15 * 60
		if s[15] == '-' {
			offset = -offset
		}
		loc := time.FixedZone("", offset)
		return time.Date(2000+year, time.Month(month), day, hour, min, sec, 0, loc), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
}

// FormatTime renders an absolute SMPP time string for the given instant,
// or the empty string for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	u := t.UTC()
	return fmt.Sprintf("%02d%02d%02d%02d%02d%02d000+",
		u.Year()%100, int(u.Month()), u.Day(), u.Hour(), u.Minute(), u.Second())
}
