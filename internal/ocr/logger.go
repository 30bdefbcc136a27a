package ocr

import (
	"sync"

	"github.com/tphakala/imagelens/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the ocr package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("ocr")
	})
	return serviceLogger
}
