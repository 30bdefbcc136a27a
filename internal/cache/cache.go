// Package cache persists analysis results keyed by the content hash of the
// analyzed image. A short-lived in-memory layer sits in front of the table
// so repeated lookups for hot images skip the database.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/imagelens/internal/datastore"
	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/vision"
)

const (
	DefaultMaxEntries = 100
	DefaultMaxAge     = 7 * 24 * time.Hour

	// pruneSlack is removed on top of the overflow so the next inserts do not
	// each trigger another prune
	pruneSlack = 10

	scanBatchSize = 50
)

// Observer receives cache events. The metrics package satisfies it.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheEvicted(reason string, n int)
}

// Options tunes pruning and the memory layer.
type Options struct {
	// MaxEntries is enforced after every insert; 0 disables count pruning
	MaxEntries int
	// MaxAge is enforced once when the cache is opened; 0 disables age pruning
	MaxAge time.Duration
	// MemoryTTL is the lifetime of in-memory copies; 0 disables the memory layer
	MemoryTTL time.Duration
	Observer  Observer
	// Now overrides the clock, for tests
	Now func() time.Time
}

// Stats summarizes cache contents.
type Stats struct {
	Count     int64     `json:"count"`
	SizeBytes int64     `json:"sizeBytes"`
	Oldest    time.Time `json:"oldest"`
	Newest    time.Time `json:"newest"`
	Hits      uint64    `json:"hits"`
	Misses    uint64    `json:"misses"`
}

// Cache is the result cache. It is safe for concurrent use.
type Cache struct {
	db   *gorm.DB
	opts Options
	mem  *gocache.Cache

	// writeMu serializes insert+prune so two writers never prune the same rows
	writeMu sync.Mutex

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New migrates the cache table, prunes entries older than MaxAge and returns
// the cache.
func New(ctx context.Context, m datastore.Manager, opts Options) (*Cache, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := m.Migrate(&Entry{}); err != nil {
		return nil, err
	}

	c := &Cache{db: m.DB(), opts: opts}
	if opts.MemoryTTL > 0 {
		c.mem = gocache.New(opts.MemoryTTL, opts.MemoryTTL*2)
	}

	if opts.MaxAge > 0 {
		n, err := c.PruneByAge(ctx, opts.MaxAge)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			GetLogger().Info("pruned expired cache entries",
				logger.Int64("removed", n),
				logger.Duration("max_age", opts.MaxAge))
		}
	}
	return c, nil
}

// Get returns the cached result for hash. A row that no longer decodes is
// dropped and reported as a miss.
func (c *Cache) Get(ctx context.Context, hash string) (*vision.AnalysisResult, bool, error) {
	if c.mem != nil {
		if v, ok := c.mem.Get(hash); ok {
			if result, ok := v.(vision.AnalysisResult); ok {
				c.recordHit()
				return &result, true, nil
			}
		}
	}

	var entry Entry
	err := c.db.WithContext(ctx).Where(&Entry{ImageHash: hash}).Take(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.recordMiss()
		return nil, false, nil
	case err != nil:
		return nil, false, cacheError(err, "cache_get", hash)
	}

	var result vision.AnalysisResult
	if err := json.Unmarshal([]byte(entry.ResultJSON), &result); err != nil {
		GetLogger().Warn("dropping undecodable cache entry",
			logger.String("image_hash", hash),
			logger.Error(err))
		_ = c.Remove(ctx, hash)
		c.recordMiss()
		return nil, false, nil
	}

	if c.mem != nil {
		c.mem.SetDefault(hash, result)
	}
	c.recordHit()
	return &result, true, nil
}

// Put stores result under hash, replacing any previous entry, then enforces
// MaxEntries.
func (c *Cache) Put(ctx context.Context, hash string, result *vision.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return cacheError(err, "cache_encode", hash)
	}

	entry := Entry{
		ImageHash:  hash,
		ResultJSON: string(data),
		Created:    toUnixSeconds(c.opts.Now()),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "image_hash"}},
		UpdateAll: true,
	}).Create(&entry).Error
	if err != nil {
		return cacheError(err, "cache_put", hash)
	}

	if c.mem != nil {
		// round-trip through JSON so the memory copy matches what Get decodes
		var stored vision.AnalysisResult
		if err := json.Unmarshal(data, &stored); err == nil {
			c.mem.SetDefault(hash, stored)
		}
	}

	return c.pruneByCountLocked(ctx)
}

// pruneByCountLocked deletes the oldest entries once the table exceeds
// MaxEntries. Callers hold writeMu.
func (c *Cache) pruneByCountLocked(ctx context.Context) error {
	if c.opts.MaxEntries <= 0 {
		return nil
	}

	var count int64
	if err := c.db.WithContext(ctx).Model(&Entry{}).Count(&count).Error; err != nil {
		return cacheError(err, "cache_count", "")
	}
	if count <= int64(c.opts.MaxEntries) {
		return nil
	}

	excess := min(count-int64(c.opts.MaxEntries)+pruneSlack, count)

	// MySQL does not allow LIMIT inside an IN subquery, so select first
	var hashes []string
	err := c.db.WithContext(ctx).Model(&Entry{}).
		Order("created_at ASC").Order("image_hash ASC").
		Limit(int(excess)).
		Pluck("image_hash", &hashes).Error
	if err != nil {
		return cacheError(err, "cache_prune_select", "")
	}

	removed, err := c.deleteHashes(ctx, hashes)
	if err != nil {
		return err
	}
	GetLogger().Debug("pruned cache by count",
		logger.Int64("removed", removed),
		logger.Int("max_entries", c.opts.MaxEntries))
	c.recordEvicted("count", removed)
	return nil
}

// PruneByAge deletes entries created more than maxAge ago and returns how
// many were removed.
func (c *Cache) PruneByAge(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := toUnixSeconds(c.opts.Now().Add(-maxAge))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var hashes []string
	err := c.db.WithContext(ctx).Model(&Entry{}).
		Where("created_at < ?", cutoff).
		Pluck("image_hash", &hashes).Error
	if err != nil {
		return 0, cacheError(err, "cache_prune_age", "")
	}

	removed, err := c.deleteHashes(ctx, hashes)
	if err != nil {
		return 0, err
	}
	c.recordEvicted("age", removed)
	return removed, nil
}

func (c *Cache) deleteHashes(ctx context.Context, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	res := c.db.WithContext(ctx).Where("image_hash IN ?", hashes).Delete(&Entry{})
	if res.Error != nil {
		return 0, cacheError(res.Error, "cache_delete", "")
	}
	if c.mem != nil {
		for _, h := range hashes {
			c.mem.Delete(h)
		}
	}
	return res.RowsAffected, nil
}

// Remove deletes the entry for hash. Removing a missing entry is not an error.
func (c *Cache) Remove(ctx context.Context, hash string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.mem != nil {
		c.mem.Delete(hash)
	}
	if err := c.db.WithContext(ctx).Delete(&Entry{ImageHash: hash}).Error; err != nil {
		return cacheError(err, "cache_remove", hash)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.mem != nil {
		c.mem.Flush()
	}
	err := c.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error
	if err != nil {
		return cacheError(err, "cache_clear", "")
	}
	return nil
}

// Count returns the number of stored entries.
func (c *Cache) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&Entry{}).Count(&count).Error; err != nil {
		return 0, cacheError(err, "cache_count", "")
	}
	return count, nil
}

// SizeBytes returns the total size of the serialized results.
func (c *Cache) SizeBytes(ctx context.Context) (int64, error) {
	var size int64
	err := c.db.WithContext(ctx).Model(&Entry{}).
		Select("COALESCE(SUM(LENGTH(result_json)), 0)").
		Scan(&size).Error
	if err != nil {
		return 0, cacheError(err, "cache_size", "")
	}
	return size, nil
}

// Stats returns counters and the age range of stored entries.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var row struct {
		Count     int64
		SizeBytes int64
		Oldest    float64
		Newest    float64
	}
	err := c.db.WithContext(ctx).Model(&Entry{}).
		Select("COUNT(*) AS count, " +
			"COALESCE(SUM(LENGTH(result_json)), 0) AS size_bytes, " +
			"COALESCE(MIN(created_at), 0) AS oldest, " +
			"COALESCE(MAX(created_at), 0) AS newest").
		Scan(&row).Error
	if err != nil {
		return Stats{}, cacheError(err, "cache_stats", "")
	}
	return Stats{
		Count:     row.Count,
		SizeBytes: row.SizeBytes,
		Oldest:    fromUnixSeconds(row.Oldest),
		Newest:    fromUnixSeconds(row.Newest),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
	}, nil
}

// LookupByResultID finds an entry by the result identity instead of the
// content hash. The table is not indexed by id so this scans every row.
func (c *Cache) LookupByResultID(ctx context.Context, id string) (*vision.AnalysisResult, bool, error) {
	var found *vision.AnalysisResult
	var batch []Entry
	res := c.db.WithContext(ctx).Model(&Entry{}).
		FindInBatches(&batch, scanBatchSize, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				var probe struct {
					ID string `json:"id"`
				}
				if json.Unmarshal([]byte(batch[i].ResultJSON), &probe) != nil || probe.ID != id {
					continue
				}
				var result vision.AnalysisResult
				if err := json.Unmarshal([]byte(batch[i].ResultJSON), &result); err != nil {
					return err
				}
				found = &result
				return errStopScan
			}
			return nil
		})
	if res.Error != nil && !errors.Is(res.Error, errStopScan) {
		return nil, false, cacheError(res.Error, "cache_lookup_id", "")
	}
	return found, found != nil, nil
}

var errStopScan = errors.NewStd("stop scan")

func (c *Cache) recordHit() {
	c.hits.Add(1)
	if c.opts.Observer != nil {
		c.opts.Observer.CacheHit()
	}
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	if c.opts.Observer != nil {
		c.opts.Observer.CacheMiss()
	}
}

func (c *Cache) recordEvicted(reason string, n int64) {
	if n > 0 && c.opts.Observer != nil {
		c.opts.Observer.CacheEvicted(reason, int(n))
	}
}

func cacheError(err error, operation, hash string) error {
	b := errors.New(err).
		Component("cache").
		Category(errors.CategoryCache).
		Context("operation", operation)
	if hash != "" {
		b = b.Context("image_hash", hash)
	}
	return b.Build()
}
