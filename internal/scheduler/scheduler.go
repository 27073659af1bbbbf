// Package scheduler runs periodic ledger jobs on robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/budget-service/internal/models"
)

// jobTimeout bounds a single job run.
const jobTimeout = time.Minute

// Ledger is the part of the ledger service the jobs need.
type Ledger interface {
	Reconcile(ctx context.Context) (models.Reconciliation, error)
	Summary(ctx context.Context) (models.IncomeExpenseStats, error)
}

// SummarySender delivers the daily summary.
type SummarySender interface {
	SendDailySummary(stats models.IncomeExpenseStats, at time.Time) error
}

// Scheduler owns the cron instance and the registered jobs
type Scheduler struct {
	cron   *cron.Cron
	ledger Ledger
	sender SummarySender
	log    *logrus.Logger
	now    func() time.Time
}

// New creates a scheduler. sender may be nil, in which case no summary job is registered.
func New(ledger Ledger, sender SummarySender, log *logrus.Logger) *Scheduler {
	logger := cron.PrintfLogger(log)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ledger: ledger,
		sender: sender,
		log:    log,
		now:    time.Now,
	}
}

// Register adds the reconciliation and summary jobs. An empty spec disables a job.
func (s *Scheduler) Register(reconcileSpec, summarySpec string) error {
	if reconcileSpec != "" {
		if _, err := s.cron.AddFunc(reconcileSpec, func() { s.RunReconcile(context.Background()) }); err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", reconcileSpec, err)
		}
		s.log.Infof("Scheduled ledger reconciliation: %s", reconcileSpec)
	}
	if summarySpec != "" && s.sender != nil {
		if _, err := s.cron.AddFunc(summarySpec, func() { s.RunSummary(context.Background()) }); err != nil {
			return fmt.Errorf("invalid summary schedule %q: %w", summarySpec, err)
		}
		s.log.Infof("Scheduled daily summary: %s", summarySpec)
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunReconcile checks the stored balance against the transactions.
func (s *Scheduler) RunReconcile(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if _, err := s.ledger.Reconcile(ctx); err != nil {
		s.log.WithError(err).Error("Scheduled reconciliation failed")
	}
}

// RunSummary mails the current income/expense totals.
func (s *Scheduler) RunSummary(ctx context.Context) {
	if s.sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	stats, err := s.ledger.Summary(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to compute daily summary")
		return
	}
	if err := s.sender.SendDailySummary(stats, s.now()); err != nil {
		s.log.WithError(err).Error("Failed to send daily summary")
	}
}
