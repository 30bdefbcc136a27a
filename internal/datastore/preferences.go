package datastore

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/imagelens/internal/errors"
)

// Preference is one user-scoped key/value pair.
type Preference struct {
	Key       string `gorm:"column:pref_key;primaryKey;size:128"`
	Value     string `gorm:"column:pref_value;type:text"`
	UpdatedAt time.Time
}

func (Preference) TableName() string { return "preferences" }

// Preferences stores small serialized settings that outlive a process, such
// as the persisted pipeline configuration.
type Preferences struct {
	db *gorm.DB
}

// NewPreferences migrates the preference table and returns the store.
func NewPreferences(m Manager) (*Preferences, error) {
	if err := m.Migrate(&Preference{}); err != nil {
		return nil, err
	}
	return &Preferences{db: m.DB()}, nil
}

// Get returns the value stored under key. ok is false when the key is absent.
func (p *Preferences) Get(key string) (value string, ok bool, err error) {
	var pref Preference
	err = p.db.Where(&Preference{Key: key}).Take(&pref).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	case err != nil:
		return "", false, preferenceError(err, key, "preference_get")
	}
	return pref.Value, true, nil
}

// Set inserts or replaces the value under key.
func (p *Preferences) Set(key, value string) error {
	pref := Preference{Key: key, Value: value, UpdatedAt: time.Now()}
	err := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pref_key"}},
		UpdateAll: true,
	}).Create(&pref).Error
	if err != nil {
		return preferenceError(err, key, "preference_set")
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (p *Preferences) Delete(key string) error {
	if err := p.db.Delete(&Preference{Key: key}).Error; err != nil {
		return preferenceError(err, key, "preference_delete")
	}
	return nil
}

func preferenceError(err error, key, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("key", key).
		Context("operation", operation).
		Build()
}
