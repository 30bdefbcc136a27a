package pipeline

import (
	"github.com/tphakala/imagelens/internal/logger"
)

// PreferenceKey is the key the effective configuration is persisted under.
const PreferenceKey = "image_analysis_pipeline_config"

// PreferenceStore is the key/value store backing configuration persistence.
// *datastore.Preferences satisfies it.
type PreferenceStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// LoadConfig returns the persisted configuration layered over fallback. A
// missing or undecodable entry yields fallback.
func LoadConfig(store PreferenceStore, fallback Config) (Config, error) {
	raw, ok, err := store.Get(PreferenceKey)
	if err != nil {
		return fallback, err
	}
	if !ok {
		return fallback, nil
	}
	c, err := UnmarshalConfig([]byte(raw), fallback)
	if err != nil {
		GetLogger().Warn("ignoring stored pipeline configuration", logger.Error(err))
		return fallback, nil
	}
	return c, nil
}

// SaveConfig persists c.
func SaveConfig(store PreferenceStore, c Config) error {
	data, err := MarshalConfig(c)
	if err != nil {
		return err
	}
	return store.Set(PreferenceKey, string(data))
}
