// Package main запускает HTTP-сервер реестра полисов FlySure.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/flysure/internal/config"
	"github.com/mmeshcher/flysure/internal/events"
	"github.com/mmeshcher/flysure/internal/handler"
	"github.com/mmeshcher/flysure/internal/ledger"
	"github.com/mmeshcher/flysure/internal/logger"
	"github.com/mmeshcher/flysure/internal/middleware"
	"github.com/mmeshcher/flysure/internal/repository"
	"github.com/mmeshcher/flysure/internal/token"
	"github.com/mmeshcher/flysure/internal/worker"
)

// store объединяет возможности хранилища, нужные сервису целиком.
type store interface {
	ledger.Store
	token.Store
	worker.Outbox
	Close() error
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogFile)
	defer log.Sync()

	sugar := log.Sugar()

	repo, err := openStore(cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}
	defer repo.Close()

	var publisher events.Publisher
	if cfg.NatsURL != "" {
		publisher, err = events.NewNatsPublisher(cfg.NatsURL)
		if err != nil {
			sugar.Fatalw("event publisher initialization error", "error", err.Error())
		}
	} else {
		publisher = events.NewLogPublisher(log)
	}
	defer publisher.Close()

	l := ledger.New(repo, cfg.Custody)
	roles, err := l.Init(context.Background(), cfg.Owner)
	if err != nil {
		sugar.Fatalw("ledger initialization error", "error", err.Error())
	}
	sugar.Infow("ledger ready",
		"owner", roles.Owner.String(),
		"oracle", roles.Oracle.String(),
		"custody", cfg.Custody.String(),
	)

	tokens := token.NewService(repo, cfg.FaucetLimitAmt)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(l, tokens, log, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка событий из исходящей очереди
	g.Go(func() error {
		worker.NewRelay(repo, publisher, log).Run(ctx)
		return nil
	})

	// Контроль платёжеспособности
	g.Go(func() error {
		worker.NewSolvencyMonitor(l, log, cfg.SolvencyInterval).Run(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting flysure server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func openStore(cfg *config.Config) (store, error) {
	if cfg.DatabaseURI == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}
