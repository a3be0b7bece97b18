package queue

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Schedule determines when a periodic task runs next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute)
}

// earliestSchedule fires at the earliest next time of any of its parts.
type earliestSchedule []Schedule

func (s earliestSchedule) Next(from time.Time) time.Time {
	var next time.Time
	for _, part := range s {
		if t := part.Next(from); next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

func (s earliestSchedule) String() string {
	parts := make([]string, len(s))
	for i, part := range s {
		parts[i] = part.String()
	}
	return strings.Join(parts, ", ")
}

// EveryInterval runs at a fixed interval.
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// DailyAt runs once a day at hour:minute in the location of the time it is
// evaluated against.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// TwiceDaily runs every day at each of the two given hours, on the hour.
func TwiceDaily(first, second int) Schedule {
	hours := []int{first, second}
	slices.Sort(hours)
	return earliestSchedule{DailyAt(hours[0], 0), DailyAt(hours[1], 0)}
}
