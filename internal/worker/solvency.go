package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/flysure/internal/model"
)

// SolvencySource возвращает текущее покрытие обязательств реестра.
type SolvencySource interface {
	Solvency(ctx context.Context) (model.Solvency, error)
}

// SolvencyMonitor периодически сверяет остаток на счёте реестра с суммой
// выплат по активным полисам и сообщает о дефиците.
type SolvencyMonitor struct {
	source   SolvencySource
	logger   *zap.Logger
	interval time.Duration
}

// NewSolvencyMonitor создаёт монитор. При interval <= 0 монитор не запускается.
func NewSolvencyMonitor(source SolvencySource, logger *zap.Logger, interval time.Duration) *SolvencyMonitor {
	return &SolvencyMonitor{source: source, logger: logger, interval: interval}
}

// Run выполняет проверки до отмены ctx.
func (m *SolvencyMonitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check выполняет одну проверку и возвращает её результат.
func (m *SolvencyMonitor) Check(ctx context.Context) (model.Solvency, bool) {
	s, err := m.source.Solvency(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("solvency check failed", zap.Error(err))
		}
		return model.Solvency{}, false
	}

	if s.Shortfall > 0 {
		m.logger.Error("ledger custody below outstanding liability",
			zap.Stringer("custody", s.Custody),
			zap.Stringer("liability", s.Liability),
			zap.Stringer("shortfall", s.Shortfall),
			zap.Int64("activePolicies", s.ActiveCount),
		)
	}
	return s, true
}
