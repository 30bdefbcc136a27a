package cache

import (
	"math"
	"time"
)

// Entry is one row of image_analysis_cache. created_at is stored as
// fractional unix seconds.
type Entry struct {
	ImageHash  string  `gorm:"column:image_hash;primaryKey;size:64"`
	ResultJSON string  `gorm:"column:result_json;type:longtext;not null"`
	Created    float64 `gorm:"column:created_at;not null;index:idx_image_analysis_cache_created_at"`
}

func (Entry) TableName() string { return "image_analysis_cache" }

// CreatedTime returns created_at as a time.Time.
func (e *Entry) CreatedTime() time.Time {
	return fromUnixSeconds(e.Created)
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}
