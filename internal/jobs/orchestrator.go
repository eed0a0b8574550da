package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"go.uber.org/zap"
)

// Worker pool sizes.
const (
	rootConcurrency         = 1
	fullTextConcurrency     = 3
	summaryConcurrency      = 2
	perBillConcurrency      = 5
	notificationConcurrency = 10
)

// Definition binds a task name to its handler, pool size and optional schedule.
type Definition struct {
	Name        string
	Handler     queue.Handler
	Concurrency int
	// Schedule is a five-field cron expression; empty for child tasks.
	Schedule string
}

// Definitions lists every task type.
func (h *Handlers) Definitions() []Definition {
	return []Definition{
		{Name: TaskSyncRepresentatives, Handler: h.SyncRepresentatives, Concurrency: rootConcurrency, Schedule: "0 3,15 * * *"},
		{Name: TaskSyncBills, Handler: h.SyncBills, Concurrency: rootConcurrency, Schedule: "0 6,18 * * *"},
		{Name: TaskSyncSearchIndex, Handler: h.SyncSearchIndex, Concurrency: rootConcurrency, Schedule: "0 9,21 * * *"},
		{Name: TaskSyncUpcomingBills, Handler: h.SyncUpcomingBills, Concurrency: rootConcurrency, Schedule: "0 0,12 * * *"},
		{Name: TaskSyncBillSubjects, Handler: h.SyncBillSubjects, Concurrency: perBillConcurrency},
		{Name: TaskSyncBillIssues, Handler: h.SyncBillIssues, Concurrency: perBillConcurrency},
		{Name: TaskSyncBillCosponsors, Handler: h.SyncBillCosponsors, Concurrency: perBillConcurrency},
		{Name: TaskSyncBillVotes, Handler: h.SyncBillVotes, Concurrency: perBillConcurrency},
		{Name: TaskSyncRepresentativeVotes, Handler: h.SyncRepresentativeVotes, Concurrency: perBillConcurrency},
		{Name: TaskSyncBillFullText, Handler: h.SyncBillFullText, Concurrency: fullTextConcurrency},
		{Name: TaskSyncBillSummary, Handler: h.SyncBillSummary, Concurrency: summaryConcurrency},
		{Name: TaskSendNotification, Handler: h.SendNotification, Concurrency: notificationConcurrency},
	}
}

// Orchestrator registers the handlers on a queue and schedules the root jobs.
type Orchestrator struct {
	queue      *queue.Queue
	handlers   *Handlers
	logger     *zap.Logger
	registered bool
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(q *queue.Queue, handlers *Handlers, logger *zap.Logger) (*Orchestrator, error) {
	if q == nil || handlers == nil {
		return nil, fmt.Errorf("jobs: queue and handlers are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{queue: q, handlers: handlers, logger: logger}, nil
}

// Register binds every handler to the queue with its pool size. Later calls are no-ops.
func (o *Orchestrator) Register() error {
	if o.registered {
		return nil
	}
	for _, definition := range o.handlers.Definitions() {
		options := queue.RegisterOptions{Concurrency: definition.Concurrency}
		if err := o.queue.Register(definition.Name, definition.Handler, options); err != nil {
			return err
		}
	}
	o.registered = true
	return nil
}

// Schedule registers the recurring root jobs.
func (o *Orchestrator) Schedule(ctx context.Context) error {
	for _, definition := range o.handlers.Definitions() {
		if definition.Schedule == "" {
			continue
		}
		options := queue.EnqueueOptions{Repeat: definition.Schedule}
		if _, err := o.queue.Enqueue(ctx, definition.Name, nil, options); err != nil {
			return err
		}
	}
	return nil
}

// Start registers, schedules, starts the workers and sweeps the full-text backlog.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.Register(); err != nil {
		return err
	}
	if err := o.Schedule(ctx); err != nil {
		return err
	}
	if err := o.queue.Start(ctx); err != nil {
		return err
	}
	started := time.Now()
	queued, err := o.handlers.EnqueueFullTextBacklog(ctx)
	if err != nil {
		return err
	}
	o.logger.Info("orchestrator started",
		zap.Int("backlog_queued", queued),
		zap.Duration("backlog_elapsed", time.Since(started)))
	return nil
}
