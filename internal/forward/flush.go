package forward

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoFlushTimes is returned when collection is configured without any
// flush time-of-day points. Scheduling must fail loudly rather than
// silently never firing.
var ErrNoFlushTimes = errors.New("no flush times configured")

type timeOfDay struct {
	hour   int
	minute int
}

func (t timeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.hour, t.minute)
}

// Schedule is the immutable set of daily flush points.
//
// Instead of patching fired points forward by 24h (which can leave the list
// unsorted when several points have passed), Next recomputes the upcoming
// absolute instant from the sorted times-of-day on every call.
type Schedule struct {
	points []timeOfDay
	loc    *time.Location
}

// NewSchedule parses a comma-separated list of "HH:MM" times. Points are
// sorted and deduplicated; the list must not be empty.
func NewSchedule(raw string, loc *time.Location) (*Schedule, error) {
	if loc == nil {
		loc = time.Local
	}
	var points []timeOfDay
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, m, err := parseHHMM(part)
		if err != nil {
			return nil, err
		}
		points = append(points, timeOfDay{hour: h, minute: m})
	}
	if len(points) == 0 {
		return nil, ErrNoFlushTimes
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].hour != points[j].hour {
			return points[i].hour < points[j].hour
		}
		return points[i].minute < points[j].minute
	})
	dedup := points[:1]
	for _, p := range points[1:] {
		if p != dedup[len(dedup)-1] {
			dedup = append(dedup, p)
		}
	}
	return &Schedule{points: dedup, loc: loc}, nil
}

// Next returns the earliest flush instant strictly after now. When every
// point has already passed today, it is the earliest point tomorrow.
func (s *Schedule) Next(now time.Time) time.Time {
	now = now.In(s.loc)
	y, mo, d := now.Date()
	for _, p := range s.points {
		at := time.Date(y, mo, d, p.hour, p.minute, 0, 0, s.loc)
		if at.After(now) {
			return at
		}
	}
	first := s.points[0]
	return time.Date(y, mo, d+1, first.hour, first.minute, 0, 0, s.loc)
}

// Location returns the schedule's timezone.
func (s *Schedule) Location() *time.Location { return s.loc }

// Times returns the sorted points as "HH:MM" strings.
func (s *Schedule) Times() []string {
	out := make([]string, len(s.points))
	for i, p := range s.points {
		out[i] = p.String()
	}
	return out
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
