package mqtt

import (
	"time"

	"github.com/tphakala/imagelens/internal/vision"
)

// ResultSummaryDTO is the payload published for each finished analysis.
// Field names are part of the MQTT contract consumed by automations.
type ResultSummaryDTO struct {
	ID             string    `json:"id"`
	ImageHash      string    `json:"imageHash"`
	Timestamp      time.Time `json:"timestamp"`
	Caption        string    `json:"caption"`
	Tags           []string  `json:"tags"`
	FailedLayers   []string  `json:"failedLayers"`
	ExecutedLayers []string  `json:"executedLayers"`
	ObjectCount    int       `json:"objectCount"`
	DocumentType   string    `json:"documentType,omitempty"`
	ThermalState   string    `json:"thermalState"`
	ProcessingMs   int64     `json:"processingMs"`
}

// NewResultSummaryDTO builds the payload for r.
func NewResultSummaryDTO(r *vision.AnalysisResult) *ResultSummaryDTO {
	dto := &ResultSummaryDTO{
		ID:             r.ID,
		ImageHash:      r.ImageHash,
		Timestamp:      r.Timestamp,
		Caption:        r.Description.Caption,
		Tags:           r.Tags,
		FailedLayers:   r.FailedLayers.Names(),
		ExecutedLayers: r.ExecutedLayers.Names(),
		ObjectCount:    len(r.Objects),
		ThermalState:   r.ThermalState.String(),
		ProcessingMs:   r.ProcessingTime.Milliseconds(),
	}
	if dto.Tags == nil {
		dto.Tags = []string{}
	}
	if r.Document != nil && r.Document.Type != vision.DocumentUnknown {
		dto.DocumentType = string(r.Document.Type)
	}
	return dto
}
