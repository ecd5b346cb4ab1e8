package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/adscope/billing/internal/app/service/deadletter"
	"github.com/adscope/billing/internal/app/service/ledger"
	"github.com/adscope/billing/internal/app/service/lifecycle"
	"github.com/adscope/billing/internal/app/service/renewal"
	"github.com/adscope/billing/internal/app/service/webhook"
	"github.com/adscope/billing/pkg/config"
)

// Scheduler runs the periodic billing jobs: plan-change execution, the
// auto-renewal sweep, credit reconciliation, and retention cleanup. Each job
// loops on its own ticker; all loops stop together on shutdown.
type Scheduler struct {
	cfg        *config.Config
	lifecycle  *lifecycle.Service
	sweeper    *renewal.Sweeper
	reconciler *ledger.Reconciler
	eventLog   *webhook.EventLog
	dlq        *deadletter.Store
	log        *zap.SugaredLogger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg *config.Config, lc *lifecycle.Service, sw *renewal.Sweeper, rec *ledger.Reconciler, el *webhook.EventLog, dlq *deadletter.Store, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		lifecycle:  lc,
		sweeper:    sw,
		reconciler: rec,
		eventLog:   el,
		dlq:        dlq,
		log:        log,
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.spawn("plan_change_sweep", minutes(s.cfg.Sweep.PlanChangeMinutes, 15), func(ctx context.Context) error {
		_, err := s.lifecycle.SweepDueChanges(ctx)
		return err
	})
	s.spawn("renewal_sweep", minutes(s.cfg.Sweep.RenewalMinutes, 15), func(ctx context.Context) error {
		_, err := s.sweeper.SweepOnce(ctx)
		return err
	})
	s.spawn("credit_reconcile", hours(s.cfg.Sweep.ReconcileHours, 24), s.reconciler.SweepOnce)
	s.spawn("retention_cleanup", hours(s.cfg.Sweep.CleanupHours, 24), s.cleanup)
	s.log.Infow("scheduler_started")
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.log.Infow("scheduler_stopped")
}

func (s *Scheduler) spawn(name string, interval time.Duration, job func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if err := runWithRetry(ctx, 3, time.Second, func() error { return job(ctx) }); err != nil {
					s.log.Errorw("job_failed", "job", name, "error", err)
				}
				cancel()
			}
		}
	}()
}

func (s *Scheduler) cleanup(ctx context.Context) error {
	retention := days(s.cfg.Sweep.RetentionDays, 90)
	n, err := s.eventLog.PurgeHandledBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return err
	}
	dlqAge := days(s.cfg.Sweep.DeadLetterAgeDays, 30)
	m, err := s.dlq.PurgeOlderThan(ctx, time.Now().Add(-dlqAge))
	if err != nil {
		return err
	}
	if n > 0 || m > 0 {
		s.log.Infow("retention_cleanup_done", "event_logs_purged", n, "dead_letters_purged", m)
	}
	return nil
}

// runWithRetry retries job with doubling backoff. The context bounds the
// whole attempt sequence.
func runWithRetry(ctx context.Context, attempts int, backoff time.Duration, job func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = job(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func minutes(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}

func hours(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Hour
}

func days(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * 24 * time.Hour
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { s.Start(); return nil },
			OnStop:  func(context.Context) error { s.Stop(); return nil },
		})
	}),
)
