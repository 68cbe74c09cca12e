package realtime

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Publisher emits row-level change notifications after store writes. It is
// best-effort: a failed publish is logged and swallowed so a notification
// problem never fails the write that triggered it.
type Publisher struct {
	broker Broker
	logger *zap.Logger
}

func NewPublisher(broker Broker, logger *zap.Logger) *Publisher {
	return &Publisher{
		broker: broker,
		logger: logger.Named("realtime.publisher"),
	}
}

func (p *Publisher) PublishInsert(ctx context.Context, sessionID, entity string, row interface{}) {
	p.publish(ctx, sessionID, notification{Type: string(ChangeInsert), Table: entity, New: row})
}

func (p *Publisher) PublishUpdate(ctx context.Context, sessionID, entity string, row, oldRow interface{}) {
	p.publish(ctx, sessionID, notification{Type: string(ChangeUpdate), Table: entity, New: row, Old: oldRow})
}

func (p *Publisher) PublishDelete(ctx context.Context, sessionID, entity string, row interface{}) {
	p.publish(ctx, sessionID, notification{Type: string(ChangeDelete), Table: entity, Old: row})
}

func (p *Publisher) publish(ctx context.Context, sessionID string, n notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.logger.Error("failed to serialize change notification",
			zap.String("table", n.Table),
			zap.Error(err))
		return
	}

	channel := channelName(n.Table, sessionID)
	if err := p.broker.Publish(ctx, channel, payload); err != nil {
		p.logger.Error("failed to publish change notification",
			zap.String("channel", channel),
			zap.Error(err))
	}
}
