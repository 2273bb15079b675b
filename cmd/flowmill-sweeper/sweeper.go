// Package main provides the Flowmill SLA sweeper: a scheduled scan over
// running instances that recomputes SLA levels and emits status change
// events on transitions.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/flowmill/flowmill/pkg/sla"
)

type Sweeper struct {
	schedule string
	scanner  *sla.Scanner
	logger   *slog.Logger
}

func NewSweeper(schedule string, scanner *sla.Scanner, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		schedule: schedule,
		scanner:  scanner,
		logger:   logger.With("module", "sweeper"),
	}
}

// Start runs the scan on the configured cron schedule until a shutdown
// signal arrives. One scan runs immediately at startup so a crashed sweeper
// never leaves a full interval uncovered.
func (s *Sweeper) Start(ctx context.Context) error {
	sCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.handleSignals(cancel)

	s.scan(sCtx)

	scheduler := cron.New()

	_, err := scheduler.AddFunc(s.schedule, func() {
		s.scan(sCtx)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(sCtx, "Starting SLA sweeper", "schedule", s.schedule)
	scheduler.Start()

	<-sCtx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	s.logger.Info("SLA sweeper stopped")

	return nil
}

func (s *Sweeper) scan(ctx context.Context) {
	changes, err := s.scanner.ScanActiveInstances(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "SLA scan failed", "error", err)

		return
	}

	s.logger.InfoContext(ctx, "SLA scan finished", "status_changes", len(changes))
}

func (s *Sweeper) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()
}
