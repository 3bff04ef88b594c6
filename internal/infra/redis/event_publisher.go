package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"live-session-service/internal/domain"
)

// envelope is what goes over the wire on session:{code}:events.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      int64           `json:"at"`
}

// EventPublisher fans session-wide events out to other instances and observers.
type EventPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

func NewEventPublisher(client *redis.Client, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{client: client, logger: logger}
}

func (p *EventPublisher) Publish(ctx context.Context, code string, event domain.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Name, err)
	}
	body, err := json.Marshal(envelope{Event: event.Name, Payload: payload, At: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel(code), body).Err()
}

// Subscribe calls handler for every event published for code until the returned cancel is called.
func (p *EventPublisher) Subscribe(ctx context.Context, code string, handler func(event string, payload json.RawMessage)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := p.client.Subscribe(ctx, channel(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					p.logger.Warn("drop malformed session event", zap.String("session_code", code), zap.Error(err))
					continue
				}
				handler(env.Event, env.Payload)
			}
		}
	}()
	return cancelCtx, nil
}

func channel(code string) string {
	return "session:" + code + ":events"
}
