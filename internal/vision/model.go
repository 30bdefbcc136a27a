// Package vision holds the data model shared by every stage of the image
// analysis pipeline.
package vision

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
)

// BoundingBox is a rectangle in normalized image coordinates, origin top-left.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns width*height, or 0 for degenerate boxes.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// MaxX returns the right edge.
func (b BoundingBox) MaxX() float64 { return b.X + b.Width }

// MaxY returns the bottom edge.
func (b BoundingBox) MaxY() float64 { return b.Y + b.Height }

// Center returns the box center point.
func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Intersection returns the overlapping area of two boxes, 0 when disjoint.
func (b BoundingBox) Intersection(o BoundingBox) float64 {
	w := math.Min(b.MaxX(), o.MaxX()) - math.Max(b.X, o.X)
	h := math.Min(b.MaxY(), o.MaxY()) - math.Max(b.Y, o.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Union returns the smallest box containing both boxes.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	minX := math.Min(b.X, o.X)
	minY := math.Min(b.Y, o.Y)
	return BoundingBox{
		X:      minX,
		Y:      minY,
		Width:  math.Max(b.MaxX(), o.MaxX()) - minX,
		Height: math.Max(b.MaxY(), o.MaxY()) - minY,
	}
}

// Clamp restricts the box to the unit square.
func (b BoundingBox) Clamp() BoundingBox {
	x0 := clamp01(b.X)
	y0 := clamp01(b.Y)
	x1 := clamp01(b.MaxX())
	y1 := clamp01(b.MaxY())
	return BoundingBox{X: x0, Y: y0, Width: math.Max(0, x1-x0), Height: math.Max(0, y1-y0)}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Point is a normalized image coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DetectedObject is one object found by the detection layer.
type DetectedObject struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	ClassIndex int         `json:"classIndex"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"boundingBox"`
}

// TextBlock is one line or block of recognized text.
type TextBlock struct {
	Text       string      `json:"text"`
	Box        BoundingBox `json:"boundingBox"`
	Confidence float64     `json:"confidence"`
	Language   string      `json:"language,omitempty"`
}

// Barcode is a decoded 1D or 2D code.
type Barcode struct {
	Payload   string      `json:"payload"`
	Symbology string      `json:"symbology"`
	Box       BoundingBox `json:"boundingBox"`
}

// DocumentType is the inferred kind of document in the image.
type DocumentType string

const (
	DocumentReceipt      DocumentType = "receipt"
	DocumentBusinessCard DocumentType = "businessCard"
	DocumentForm         DocumentType = "form"
	DocumentLetter       DocumentType = "letter"
	DocumentArticle      DocumentType = "article"
	DocumentUnknown      DocumentType = "unknown"
)

// DisplayName returns the human form used in captions and tags.
func (d DocumentType) DisplayName() string {
	switch d {
	case DocumentBusinessCard:
		return "business card"
	case "":
		return string(DocumentUnknown)
	default:
		return string(d)
	}
}

// DocumentAnalysis is the document structure inferred from OCR output.
type DocumentAnalysis struct {
	Type              DocumentType `json:"documentType"`
	Bounds            BoundingBox  `json:"boundingBox"`
	Paragraphs        []string     `json:"paragraphs"`
	Lists             [][]string   `json:"lists"`
	Tables            [][]string   `json:"tables"` // table detection is not implemented; always empty
	Codes             []string     `json:"codes"`
	AverageConfidence float64      `json:"averageConfidence"`
}

// SegmentationMask describes one foreground region.
type SegmentationMask struct {
	Mask         []byte      `json:"mask,omitempty"`
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Box          BoundingBox `json:"boundingBox"`
	AreaFraction float64     `json:"areaFraction"`
	Centroid     Point       `json:"centroid"`
	ObjectID     string      `json:"objectId,omitempty"`
	Confidence   float64     `json:"confidence"`
}

// HistogramBuckets is the number of depth histogram buckets.
const HistogramBuckets = 10

// DepthSummary holds statistics over a depth map.
type DepthSummary struct {
	Buffer    []byte                    `json:"buffer,omitempty"`
	Width     int                       `json:"width"`
	Height    int                       `json:"height"`
	Min       float64                   `json:"min"`
	Max       float64                   `json:"max"`
	Average   float64                   `json:"average"`
	Histogram [HistogramBuckets]float64 `json:"histogram"`
}

// Describe renders a one-line human summary of the depth range.
func (d *DepthSummary) Describe() string {
	if d == nil {
		return ""
	}
	spread := d.Max - d.Min
	var depthWord string
	switch {
	case spread < 0.1:
		depthWord = "flat scene"
	case spread < 0.5:
		depthWord = "moderate depth"
	default:
		depthWord = "deep scene"
	}
	return fmt.Sprintf("%s (range %.2f-%.2f, average %.2f)", depthWord, d.Min, d.Max, d.Average)
}

// ObjectDescription describes one object within the scene.
type ObjectDescription struct {
	Name       string  `json:"name"`
	Region     string  `json:"region"`
	Prominence float64 `json:"prominence"`
}

// StructuredDescription is the synthesized caption and tagging output.
type StructuredDescription struct {
	Caption       string              `json:"caption"`
	Detailed      string              `json:"detailedDescription"`
	SceneTags     []string            `json:"sceneTags"`
	ActivityTags  []string            `json:"activityTags"`
	Objects       []ObjectDescription `json:"objects"`
	Colors        []string            `json:"colors"` // reserved, always empty
	Mood          string              `json:"mood"`
	TimeOfDay     string              `json:"timeOfDay,omitempty"`
	TextExcerpt   string              `json:"textExcerpt,omitempty"`
	SuggestedTags []string            `json:"suggestedTags"`
	SafetyFlags   []string            `json:"safetyFlags"`
}

// EmptyDescription is the sentinel used when description synthesis did not run.
func EmptyDescription() StructuredDescription {
	return StructuredDescription{
		SceneTags:     []string{},
		ActivityTags:  []string{},
		Objects:       []ObjectDescription{},
		Colors:        []string{},
		SuggestedTags: []string{},
		SafetyFlags:   []string{},
	}
}

// IsEmpty reports whether the description carries no content.
func (d *StructuredDescription) IsEmpty() bool {
	return d.Caption == "" && d.Detailed == "" && len(d.SceneTags) == 0 && len(d.SuggestedTags) == 0
}

// ThermalState is the device heat severity, ordered from coolest to hottest.
type ThermalState int

const (
	ThermalNominal ThermalState = iota
	ThermalFair
	ThermalSerious
	ThermalCritical
)

var thermalNames = [...]string{"nominal", "fair", "serious", "critical"}

func (t ThermalState) String() string {
	if t < 0 || int(t) >= len(thermalNames) {
		return "unknown"
	}
	return thermalNames[t]
}

// ParseThermalState converts a name to a ThermalState; unknown names map to nominal.
func ParseThermalState(name string) ThermalState {
	if i := slices.Index(thermalNames[:], name); i >= 0 {
		return ThermalState(i)
	}
	return ThermalNominal
}

func (t ThermalState) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ThermalState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*t = ParseThermalState(name)
	return nil
}

// AnalysisResult is the merged output of one pipeline run. Treat it as a value:
// the With* helpers return modified copies.
type AnalysisResult struct {
	ID             string                  `json:"id"`
	ImageHash      string                  `json:"imageHash"`
	Timestamp      time.Time               `json:"timestamp"`
	ProcessingTime time.Duration           `json:"processingTime"`
	Document       *DocumentAnalysis       `json:"documentAnalysis,omitempty"`
	TextBlocks     []TextBlock             `json:"textBlocks"`
	Barcodes       []Barcode               `json:"barcodes"`
	Objects        []DetectedObject        `json:"objects"`
	Masks          []SegmentationMask      `json:"segmentationMasks,omitempty"`
	Depth          *DepthSummary           `json:"depth,omitempty"`
	Description    StructuredDescription   `json:"description"`
	SearchableText string                  `json:"searchableText"`
	Tags           []string                `json:"tags"`
	Embedding      []float32               `json:"embedding,omitempty"`
	ExecutedLayers LayerSet                `json:"executedLayers"`
	FailedLayers   LayerSet                `json:"failedLayers"`
	LayerTimings   map[Layer]time.Duration `json:"layerTimings"`
	ThermalState   ThermalState            `json:"thermalState"`
}

// NewAnalysisResult returns a result with every collection initialized.
func NewAnalysisResult(id, imageHash string, ts time.Time) AnalysisResult {
	return AnalysisResult{
		ID:             id,
		ImageHash:      imageHash,
		Timestamp:      ts,
		TextBlocks:     []TextBlock{},
		Barcodes:       []Barcode{},
		Objects:        []DetectedObject{},
		Description:    EmptyDescription(),
		Tags:           []string{},
		ExecutedLayers: LayerSet{},
		FailedLayers:   LayerSet{},
		LayerTimings:   map[Layer]time.Duration{},
	}
}

// clone copies the mutable containers so the returned value shares nothing
// with r that the With* helpers would modify.
func (r AnalysisResult) clone() AnalysisResult {
	r.ExecutedLayers = r.ExecutedLayers.Clone()
	r.FailedLayers = r.FailedLayers.Clone()
	timings := make(map[Layer]time.Duration, len(r.LayerTimings))
	maps.Copy(timings, r.LayerTimings)
	r.LayerTimings = timings
	return r
}

// WithLayerExecuted records a successful layer run.
func (r AnalysisResult) WithLayerExecuted(l Layer, took time.Duration) AnalysisResult {
	c := r.clone()
	delete(c.FailedLayers, l)
	c.ExecutedLayers[l] = struct{}{}
	c.LayerTimings[l] = took
	return c
}

// WithLayerFailed records a failed layer run.
func (r AnalysisResult) WithLayerFailed(l Layer, took time.Duration) AnalysisResult {
	c := r.clone()
	delete(c.ExecutedLayers, l)
	c.FailedLayers[l] = struct{}{}
	c.LayerTimings[l] = took
	return c
}

// WithText sets OCR output and the optional document structure.
func (r AnalysisResult) WithText(blocks []TextBlock, codes []Barcode, doc *DocumentAnalysis) AnalysisResult {
	c := r.clone()
	c.TextBlocks = slices.Clone(blocks)
	c.Barcodes = slices.Clone(codes)
	c.Document = doc
	return c
}

// WithObjects sets detected objects.
func (r AnalysisResult) WithObjects(objects []DetectedObject) AnalysisResult {
	c := r.clone()
	c.Objects = slices.Clone(objects)
	return c
}

// WithMasks sets segmentation masks.
func (r AnalysisResult) WithMasks(masks []SegmentationMask) AnalysisResult {
	c := r.clone()
	c.Masks = slices.Clone(masks)
	return c
}

// WithDepth sets the depth summary.
func (r AnalysisResult) WithDepth(d *DepthSummary) AnalysisResult {
	c := r.clone()
	c.Depth = d
	return c
}

// WithDescription sets the synthesized description.
func (r AnalysisResult) WithDescription(d StructuredDescription) AnalysisResult {
	c := r.clone()
	c.Description = d
	return c
}

// WithDerived sets searchable text and tags.
func (r AnalysisResult) WithDerived(searchable string, tags []string) AnalysisResult {
	c := r.clone()
	c.SearchableText = searchable
	c.Tags = slices.Clone(tags)
	return c
}

// WithEmbedding attaches an embedding vector.
func (r AnalysisResult) WithEmbedding(v []float32) AnalysisResult {
	c := r.clone()
	c.Embedding = slices.Clone(v)
	return c
}

// FullText joins all recognized text blocks with newlines.
func (r *AnalysisResult) FullText() string {
	if len(r.TextBlocks) == 0 {
		return ""
	}
	n := 0
	for i := range r.TextBlocks {
		n += len(r.TextBlocks[i].Text) + 1
	}
	buf := make([]byte, 0, n)
	for i := range r.TextBlocks {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, r.TextBlocks[i].Text...)
	}
	return string(buf)
}

// ObjectsByConfidence returns the detected objects sorted by confidence descending.
// Ties keep detection order.
func (r *AnalysisResult) ObjectsByConfidence() []DetectedObject {
	out := slices.Clone(r.Objects)
	slices.SortStableFunc(out, func(a, b DetectedObject) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})
	return out
}

// LayerOutput is the tagged output of one layer adapter. Exactly one of the
// payload fields is set, matching Layer.
type LayerOutput struct {
	Layer       Layer
	Text        *TextOutput
	Objects     []DetectedObject
	Masks       []SegmentationMask
	Depth       *DepthSummary
	Description *StructuredDescription
}

// TextOutput is the payload of the text recognition layer.
type TextOutput struct {
	Blocks   []TextBlock
	Barcodes []Barcode
	Document *DocumentAnalysis
}
