package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/vision"
)

type fakeClient struct {
	connected  bool
	connectErr error
	publishErr error
	connects   int
	topics     []string
	payloads   []string
}

func (f *fakeClient) Connect(context.Context) error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic, payload string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeClient) IsConnected() bool { return f.connected }
func (f *fakeClient) Disconnect()       { f.connected = false }

func sampleResult() *vision.AnalysisResult {
	r := vision.NewAnalysisResult("abc", "hash123", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	r = r.WithObjects([]vision.DetectedObject{{Label: "dog", Confidence: 0.9}})
	r = r.WithText(nil, nil, &vision.DocumentAnalysis{Type: vision.DocumentReceipt})
	desc := vision.EmptyDescription()
	desc.Caption = "An image containing dog"
	r = r.WithDescription(desc)
	r = r.WithDerived("dog", []string{"dog", "receipt"})
	r = r.WithLayerExecuted(vision.LayerObjects, time.Millisecond)
	r = r.WithLayerFailed(vision.LayerDepth, time.Millisecond)
	r.ProcessingTime = 1500 * time.Millisecond
	return &r
}

func TestResultPublisher(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p := NewResultPublisher(fc, "")

	require.NoError(t, p.Publish(t.Context(), sampleResult()))
	require.NoError(t, p.Publish(t.Context(), sampleResult()))

	assert.Equal(t, 1, fc.connects, "connects only while disconnected")
	assert.Equal(t, []string{DefaultTopic, DefaultTopic}, fc.topics)

	assert.JSONEq(t, `{
		"id": "abc",
		"imageHash": "hash123",
		"timestamp": "2026-03-01T08:00:00Z",
		"caption": "An image containing dog",
		"tags": ["dog", "receipt"],
		"failedLayers": ["depthEstimation"],
		"executedLayers": ["objectDetection"],
		"objectCount": 1,
		"documentType": "receipt",
		"thermalState": "nominal",
		"processingMs": 1500
	}`, fc.payloads[0])

	p.Close()
	assert.False(t, fc.connected)
}

func TestResultPublisherErrors(t *testing.T) {
	t.Parallel()

	t.Run("connect", func(t *testing.T) {
		t.Parallel()
		p := NewResultPublisher(&fakeClient{connectErr: errors.New("connection refused")}, "t")
		err := p.Publish(t.Context(), sampleResult())
		require.Error(t, err)
		assert.True(t, ierrors.IsCategory(err, ierrors.CategoryMQTTPublish))
	})

	t.Run("publish", func(t *testing.T) {
		t.Parallel()
		p := NewResultPublisher(&fakeClient{connected: true, publishErr: errors.New("publish timeout")}, "t")
		err := p.Publish(t.Context(), sampleResult())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publish timeout")
	})
}

func TestResultSummaryDTOEmpty(t *testing.T) {
	t.Parallel()

	r := vision.NewAnalysisResult("id", "h", time.Time{})
	r.Tags = nil
	dto := NewResultSummaryDTO(&r)

	data, err := json.Marshal(dto)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []any{}, decoded["tags"])
	assert.Equal(t, []any{}, decoded["failedLayers"])
	assert.NotContains(t, decoded, "documentType")
}
