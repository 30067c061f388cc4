package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/swapflow/auctioneer/internal/metrics"
	"github.com/swapflow/auctioneer/pkg/logger"
	"github.com/swapflow/auctioneer/pkg/model"
)

// Publisher wraps a NATS JetStream connection and publishes canonical
// auction events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
}

// New creates a Publisher with JetStream enabled.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes an event envelope.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.PublishFailed("nats")
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"session_id":     []string{env.SessionID},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"session_id", env.SessionID,
			"error", err,
		)
		metrics.PublishFailed("nats")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
		"session_id", env.SessionID,
	)
	return nil
}

// PublishRoundSettled emits the auction.settled event for one round.
func (p *Publisher) PublishRoundSettled(ctx context.Context, chainID int64, result *model.AuctionResult) error {
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		SessionID:     result.SessionID,
		ChainID:       chainID,
		Topic:         p.subject,
		EventType:     "auction.settled",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	env.Payload = data

	return p.PublishEnvelope(ctx, p.subject, env)
}

// Close drains the underlying connection.
func (p *Publisher) Close() {
	if p.nc != nil && !p.nc.IsClosed() {
		_ = p.nc.Drain()
	}
}
