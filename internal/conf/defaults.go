// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("main.name", "imagelens")
	viper.SetDefault("main.debug", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/imagelens.log")
	viper.SetDefault("logging.file_output.level", "info")
	viper.SetDefault("logging.flush_interval", 2*time.Second)

	viper.SetDefault("pipeline.enabledlayers", []string{
		"textRecognition", "objectDetection", "segmentation", "depthEstimation", "description",
	})
	viper.SetDefault("pipeline.maxconcurrentlayers", 2)
	viper.SetDefault("pipeline.preferaccuracy", false)
	viper.SetDefault("pipeline.cacheresults", true)
	viper.SetDefault("pipeline.generateembeddings", false)
	viper.SetDefault("pipeline.thermalthrottling", true)
	viper.SetDefault("pipeline.layertimeout", 30*time.Second)

	viper.SetDefault("models.detection", "models/detection.tflite")
	viper.SetDefault("models.labels", "")
	viper.SetDefault("models.segmentation", "models/segmentation.tflite")
	viper.SetDefault("models.depth", "models/depth.tflite")
	viper.SetDefault("models.threads", 0)
	viper.SetDefault("models.usexnnpack", true)

	viper.SetDefault("ocr.languages", []string{"eng"})
	viper.SetDefault("ocr.tessdata", "")
	viper.SetDefault("ocr.barcodes", true)
	viper.SetDefault("ocr.minconfidence", 0.3)

	viper.SetDefault("cache.backend", "sqlite")
	viper.SetDefault("cache.path", "imagelens.db")
	viper.SetDefault("cache.maxentries", 100)
	viper.SetDefault("cache.maxage", 7*24*time.Hour)
	viper.SetDefault("cache.memoryttl", 10*time.Minute)

	viper.SetDefault("mysql.host", "localhost")
	viper.SetDefault("mysql.port", 3306)
	viper.SetDefault("mysql.username", "")
	viper.SetDefault("mysql.password", "")
	viper.SetDefault("mysql.database", "imagelens")

	viper.SetDefault("embedding.url", "http://localhost:11434")
	viper.SetDefault("embedding.model", "nomic-embed-text")
	viper.SetDefault("embedding.ratelimit", 2.0)
	viper.SetDefault("embedding.timeout", 15*time.Second)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "imagelens/results")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")

	viper.SetDefault("webserver.listen", "127.0.0.1:8080")
	viper.SetDefault("webserver.maxuploadsize", 32<<20)
	viper.SetDefault("webserver.allowedorigins", []string{})

	viper.SetDefault("telemetry.prometheus", true)
	viper.SetDefault("telemetry.sentry.enabled", false)
	viper.SetDefault("telemetry.sentry.dsn", "")

	viper.SetDefault("location.latitude", 0.0)
	viper.SetDefault("location.longitude", 0.0)
}
