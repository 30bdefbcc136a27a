package layers

import (
	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/describe"
	"github.com/tphakala/imagelens/internal/detection"
	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/ocr"
	"github.com/tphakala/imagelens/internal/suncalc"
	"github.com/tphakala/imagelens/internal/vision"
)

// NewFromSettings builds the production adapters. Models are not loaded
// until first use. The returned func releases every handle.
func NewFromSettings(settings *conf.Settings, caps inference.Capabilities) (Registry, func()) {
	log := logger.Global().Module("layers")

	threads := settings.Models.Threads
	if threads <= 0 {
		threads = caps.Threads
	}
	model := func(layer vision.Layer, path string) *inference.Model {
		if path != "" {
			path = conf.ResolveDataPath(path, conf.ConfigFileUsed())
		}
		return inference.NewModel(inference.Options{
			Name:       string(layer),
			Path:       path,
			Threads:    threads,
			UseXNNPACK: settings.Models.UseXNNPACK && caps.Accelerated,
		})
	}

	labels := detection.DefaultLabels()
	if settings.Models.Labels != "" {
		loaded, err := detection.LoadLabels(conf.ResolveDataPath(settings.Models.Labels, conf.ConfigFileUsed()))
		if err != nil {
			log.Warn("using built-in labels", logger.Error(err))
		} else {
			labels = loaded
		}
	}

	var clock describe.Clock
	if settings.Location.Configured() {
		clock = suncalc.NewSunCalc(settings.Location.Latitude, settings.Location.Longitude)
	}

	tess := ocr.NewTesseract(ocr.TesseractOptions{
		Languages:     settings.OCR.Languages,
		TessData:      settings.OCR.TessData,
		MinConfidence: settings.OCR.MinConfidence,
	})
	var scanner ocr.BarcodeScanner
	if settings.OCR.Barcodes {
		scanner = ocr.NewZXing()
	}

	detector := model(vision.LayerObjects, settings.Models.Detection)
	segmenter := model(vision.LayerSegmentation, settings.Models.Segmentation)
	depthModel := model(vision.LayerDepth, settings.Models.Depth)

	registry := Registry{
		vision.LayerText:         NewText(tess, scanner),
		vision.LayerObjects:      NewObjects(detector, labels),
		vision.LayerSegmentation: NewSegmentation(segmenter),
		vision.LayerDepth:        NewDepth(depthModel),
		vision.LayerDescription:  NewDescription(describe.New(clock)),
	}

	closeAll := func() {
		detector.Close()
		segmenter.Close()
		depthModel.Close()
		if err := tess.Close(); err != nil {
			log.Warn("failed to close tesseract", logger.Error(err))
		}
	}
	return registry, closeAll
}
