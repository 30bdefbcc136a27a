// Package thermal reports the device heat level from hardware sensors.
package thermal

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/vision"
)

// Fallback thresholds in °C for sensors that report no limits.
const (
	fairCelsius     = 70
	seriousCelsius  = 85
	criticalCelsius = 95
)

// Sampler reports the current thermal state.
type Sampler interface {
	Sample(ctx context.Context) vision.ThermalState
}

// Static always reports the same state.
type Static vision.ThermalState

// Sample implements Sampler.
func (s Static) Sample(context.Context) vision.ThermalState { return vision.ThermalState(s) }

// HostSampler reads temperatures through gopsutil. Hosts without sensors
// report nominal.
type HostSampler struct {
	read     func(ctx context.Context) ([]host.TemperatureStat, error)
	warnOnce sync.Once
}

// NewHostSampler returns a sampler backed by the host sensors.
func NewHostSampler() *HostSampler {
	return &HostSampler{read: host.SensorsTemperaturesWithContext}
}

// Sample implements Sampler.
func (h *HostSampler) Sample(ctx context.Context) vision.ThermalState {
	temps, err := h.read(ctx)
	if err != nil && len(temps) == 0 {
		h.warnOnce.Do(func() {
			logger.Global().Module("thermal").Info("temperature sensors unavailable, assuming nominal",
				logger.Error(err))
		})
		return vision.ThermalNominal
	}
	return Classify(temps)
}

// Classify returns the hottest state over all sensors.
func Classify(temps []host.TemperatureStat) vision.ThermalState {
	state := vision.ThermalNominal
	for _, t := range temps {
		state = max(state, classifyOne(t))
	}
	return state
}

func classifyOne(t host.TemperatureStat) vision.ThermalState {
	c := t.Temperature
	switch {
	case c <= 0:
		return vision.ThermalNominal
	case t.Critical > 0 && c >= t.Critical, c >= criticalCelsius:
		return vision.ThermalCritical
	case t.High > 0 && c >= t.High, c >= seriousCelsius:
		return vision.ThermalSerious
	case c >= fairCelsius:
		return vision.ThermalFair
	default:
		return vision.ThermalNominal
	}
}
