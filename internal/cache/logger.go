package cache

import (
	"sync"

	"github.com/tphakala/imagelens/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the cache package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("cache")
	})
	return serviceLogger
}
