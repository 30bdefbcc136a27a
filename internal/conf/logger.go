package conf

import "github.com/tphakala/imagelens/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger each time because configuration loads before the central logger is set.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
