// Package suncalc computes sun event times and classifies capture times into
// a coarse time of day.
package suncalc

import (
	"fmt"
	"sync"
	"time"

	"github.com/sj14/astral/pkg/astral"
)

// SunEventTimes holds the calculated sun event times in the requested location
type SunEventTimes struct {
	CivilDawn time.Time
	Sunrise   time.Time
	Sunset    time.Time
	CivilDusk time.Time
}

// Time of day names
const (
	Night     = "night"
	Dawn      = "dawn"
	Morning   = "morning"
	Afternoon = "afternoon"
	Evening   = "evening"
	Dusk      = "dusk"
)

// SunCalc handles caching and calculation of sun event times
type SunCalc struct {
	cache    map[string]SunEventTimes
	lock     sync.RWMutex
	observer astral.Observer
}

// NewSunCalc creates a new SunCalc instance
func NewSunCalc(latitude, longitude float64) *SunCalc {
	return &SunCalc{
		cache:    make(map[string]SunEventTimes),
		observer: astral.Observer{Latitude: latitude, Longitude: longitude},
	}
}

// GetSunEventTimes returns the sun event times for the date of t, in t's location
func (sc *SunCalc) GetSunEventTimes(t time.Time) (SunEventTimes, error) {
	dateKey := t.Format("2006-01-02") + "@" + t.Location().String()

	sc.lock.RLock()
	times, exists := sc.cache[dateKey]
	sc.lock.RUnlock()
	if exists {
		return times, nil
	}

	times, err := sc.calculateSunEventTimes(t)
	if err != nil {
		return SunEventTimes{}, err
	}

	sc.lock.Lock()
	sc.cache[dateKey] = times
	sc.lock.Unlock()

	return times, nil
}

// calculateSunEventTimes calculates the sun event times for a given date.
// astral fails for polar day and night, which callers treat as "unknown".
func (sc *SunCalc) calculateSunEventTimes(date time.Time) (SunEventTimes, error) {
	loc := date.Location()

	civilDawn, err := astral.Dawn(sc.observer, date, astral.DepressionCivil)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dawn: %w", err)
	}
	sunrise, err := astral.Sunrise(sc.observer, date)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunrise: %w", err)
	}
	sunset, err := astral.Sunset(sc.observer, date)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunset: %w", err)
	}
	civilDusk, err := astral.Dusk(sc.observer, date, astral.DepressionCivil)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dusk: %w", err)
	}

	return SunEventTimes{
		CivilDawn: civilDawn.In(loc),
		Sunrise:   sunrise.In(loc),
		Sunset:    sunset.In(loc),
		CivilDusk: civilDusk.In(loc),
	}, nil
}

// TimeOfDay classifies t against the sun events of its date. When sun events
// cannot be computed, it falls back to clock hours.
func (sc *SunCalc) TimeOfDay(t time.Time) string {
	times, err := sc.GetSunEventTimes(t)
	if err != nil {
		return ClockTimeOfDay(t)
	}
	return Classify(t, times)
}

// Classify places t relative to the given sun events.
func Classify(t time.Time, s SunEventTimes) string {
	noon := s.Sunrise.Add(s.Sunset.Sub(s.Sunrise) / 2)
	// The last two hours of daylight count as evening
	eveningStart := s.Sunset.Add(-2 * time.Hour)

	switch {
	case t.Before(s.CivilDawn) || !t.Before(s.CivilDusk):
		return Night
	case t.Before(s.Sunrise):
		return Dawn
	case t.Before(noon):
		return Morning
	case t.Before(eveningStart):
		return Afternoon
	case t.Before(s.Sunset):
		return Evening
	default:
		return Dusk
	}
}

// ClockTimeOfDay classifies t by local hour alone.
func ClockTimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 5 || h >= 22:
		return Night
	case h < 7:
		return Dawn
	case h < 12:
		return Morning
	case h < 17:
		return Afternoon
	case h < 20:
		return Evening
	default:
		return Dusk
	}
}
