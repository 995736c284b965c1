// Package worker содержит фоновые процессы сервиса: доставку событий из
// исходящей очереди и контроль платёжеспособности реестра.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/flysure/internal/events"
	"github.com/mmeshcher/flysure/internal/model"
)

const (
	defaultRelayInterval = 1 * time.Second
	defaultRelayBatch    = 100
)

// Outbox описывает исходящую очередь событий реестра.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]model.Event, error)
	MarkEventsPublished(ctx context.Context, ids []string) error
}

// Relay переносит события из исходящей очереди в шину.
type Relay struct {
	outbox    Outbox
	publisher events.Publisher
	logger    *zap.Logger
	interval  time.Duration
	batch     int
}

// NewRelay создаёт процесс доставки событий.
func NewRelay(outbox Outbox, publisher events.Publisher, logger *zap.Logger) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  defaultRelayInterval,
		batch:     defaultRelayBatch,
	}
}

// Run доставляет события до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("event relay failed", zap.Error(err))
			}
		}
	}
}

// Flush публикует одну пачку событий в порядке их записи и возвращает число
// доставленных. На первой ошибке публикации пачка прерывается, чтобы не
// нарушать порядок; оставшиеся события будут отправлены на следующем такте.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.outbox.PendingEvents(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	published := make([]string, 0, len(pending))
	var publishErr error
	for _, e := range pending {
		if err := r.publisher.Publish(ctx, e); err != nil {
			publishErr = err
			break
		}
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if err := r.outbox.MarkEventsPublished(ctx, published); err != nil {
			return 0, err
		}
	}
	return len(published), publishErr
}
