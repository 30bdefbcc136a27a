package pipeline

import (
	"encoding/json"
	"time"

	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/vision"
)

// Config is a pipeline configuration. The JSON form is the flat object kept
// in the preference store.
type Config struct {
	EnabledLayers           vision.LayerSet `json:"enabledLayers"`
	MaxConcurrentLayers     int             `json:"maxConcurrentLayers"`
	PreferAccuracyOverSpeed bool            `json:"preferAccuracyOverSpeed"`
	CacheResults            bool            `json:"cacheResults"`
	GenerateEmbeddings      bool            `json:"generateEmbeddings"`
	ThermalThrottling       bool            `json:"thermalThrottling"`

	// LayerTimeout bounds each layer call; 0 disables it. Not persisted.
	LayerTimeout time.Duration `json:"-"`
}

// DefaultConfig enables every layer.
func DefaultConfig() Config {
	return Config{
		EnabledLayers:       vision.NewLayerSet(vision.AllLayers...),
		MaxConcurrentLayers: 2,
		CacheResults:        true,
		ThermalThrottling:   true,
		LayerTimeout:        30 * time.Second,
	}
}

// FromSettings converts the YAML pipeline section.
func FromSettings(s *conf.PipelineSettings) Config {
	return Config{
		EnabledLayers:           vision.ParseLayerSet(s.EnabledLayers),
		MaxConcurrentLayers:     s.MaxConcurrentLayers,
		PreferAccuracyOverSpeed: s.PreferAccuracyOverSpeed,
		CacheResults:            s.CacheResults,
		GenerateEmbeddings:      s.GenerateEmbeddings,
		ThermalThrottling:       s.ThermalThrottling,
		LayerTimeout:            s.LayerTimeout,
	}
}

// Throttled returns the reduced variant used under thermal pressure: text and
// description only, one layer at a time.
func (c Config) Throttled() Config {
	t := c.Clone()
	t.EnabledLayers = vision.NewLayerSet(vision.LayerText, vision.LayerDescription)
	t.MaxConcurrentLayers = 1
	return t
}

// Clone returns a copy that shares no state with c.
func (c Config) Clone() Config {
	c.EnabledLayers = c.EnabledLayers.Clone()
	return c
}

// MarshalConfig encodes the persisted form.
func MarshalConfig(c Config) ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalConfig decodes the persisted form. Unknown layer names are dropped.
// Missing fields keep the values from base.
func UnmarshalConfig(data []byte, base Config) (Config, error) {
	c := base.Clone()
	if err := json.Unmarshal(data, &c); err != nil {
		return base, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Context("operation", "decode_pipeline_config").
			Build()
	}
	if c.EnabledLayers == nil {
		c.EnabledLayers = vision.LayerSet{}
	}
	return c, nil
}

// Negotiate reduces requested to what this host can run. available is the set
// of layers with a registered adapter. Without acceleration every layer that
// needs it is stripped and concurrency drops to the safe ceiling.
func Negotiate(requested Config, caps inference.Capabilities, available vision.LayerSet) (Config, error) {
	c := requested.Clone()
	c.EnabledLayers = c.EnabledLayers.Intersect(available)

	if !caps.Accelerated {
		for l := range c.EnabledLayers {
			if l.RequiresAcceleration() {
				delete(c.EnabledLayers, l)
			}
		}
		c.MaxConcurrentLayers = min(c.MaxConcurrentLayers, inference.SafeConcurrency)
	}
	if caps.MaxConcurrency > 0 {
		c.MaxConcurrentLayers = min(c.MaxConcurrentLayers, caps.MaxConcurrency)
	}
	c.MaxConcurrentLayers = max(c.MaxConcurrentLayers, 1)

	if c.EnabledLayers.Len() == 0 {
		return c, errors.New(vision.ErrNoLayersEnabled).
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Context("requested_layers", requested.EnabledLayers.Names()).
			Context("accelerated", caps.Accelerated).
			Build()
	}
	return c, nil
}
