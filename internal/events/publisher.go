// Package events публикует события реестра во внешнюю шину.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/mmeshcher/flysure/internal/model"
)

const (
	StreamName    = "FLYSURE"
	SubjectPrefix = "flysure.events"
)

// Publisher отправляет событие реестра подписчикам.
type Publisher interface {
	Publish(ctx context.Context, e model.Event) error
	Close()
}

// Message описывает JSON-представление события в шине.
type Message struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	PolicyID   int64          `json:"policy_id,omitempty"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Subject возвращает тему NATS для типа события.
func Subject(t model.EventType) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, t)
}

// Encode сериализует событие в тело сообщения.
func Encode(e model.Event) ([]byte, error) {
	data, err := json.Marshal(Message{
		ID:         e.ID,
		Type:       string(e.Type),
		PolicyID:   e.PolicyID,
		Payload:    e.Payload,
		OccurredAt: e.OccurredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return data, nil
}

// NatsPublisher публикует события в NATS JetStream.
type NatsPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewNatsPublisher подключается к NATS и создаёт поток событий, если его нет.
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("flysure-ledger"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}

	return &NatsPublisher{nc: nc, js: js}, nil
}

// Publish отправляет событие. Идентификатор события используется как
// Nats-Msg-Id, поэтому повторная отправка не создаёт дубликат в потоке.
func (p *NatsPublisher) Publish(ctx context.Context, e model.Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}

	subject := Subject(e.Type)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(e.ID)); err != nil {
		return fmt.Errorf("publish event to subject %s: %w", subject, err)
	}
	return nil
}

// Close закрывает соединение с NATS.
func (p *NatsPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// LogPublisher пишет события в лог. Используется, когда NATS не настроен.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт публикатор, пишущий события в logger.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish записывает событие в лог.
func (p *LogPublisher) Publish(ctx context.Context, e model.Event) error {
	p.logger.Info("ledger event",
		zap.String("id", e.ID),
		zap.String("type", string(e.Type)),
		zap.Int64("policyID", e.PolicyID),
		zap.Any("payload", e.Payload),
	)
	return nil
}

// Close ничего не делает.
func (p *LogPublisher) Close() {}
