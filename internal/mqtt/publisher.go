package mqtt

import (
	"context"
	"encoding/json"

	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/vision"
)

// ResultPublisher publishes a summary of every finished analysis.
type ResultPublisher struct {
	client Client
	topic  string
}

// NewResultPublisher returns a publisher writing to topic through client.
func NewResultPublisher(client Client, topic string) *ResultPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &ResultPublisher{client: client, topic: topic}
}

// Publish sends the summary of r. A disconnected client gets one connection
// attempt first.
func (p *ResultPublisher) Publish(ctx context.Context, r *vision.AnalysisResult) error {
	payload, err := json.Marshal(NewResultSummaryDTO(r))
	if err != nil {
		return err
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return publishError(err, p.topic, "connect")
		}
	}

	if err := p.client.Publish(ctx, p.topic, string(payload)); err != nil {
		return publishError(err, p.topic, "publish")
	}

	GetLogger().Debug("published analysis summary",
		logger.String("topic", p.topic),
		logger.String("id", r.ID))
	return nil
}

// Close disconnects the client.
func (p *ResultPublisher) Close() {
	p.client.Disconnect()
}

func publishError(err error, topic, operation string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Context("operation", operation).
		Build()
}
