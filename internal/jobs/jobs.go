// Package jobs implements the background sync handlers and the orchestrator
// that registers and schedules them on the task queue.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/cache"
	"github.com/Breakdown/breakdown-services-sub000/internal/congress"
	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/notify"
	"github.com/Breakdown/breakdown-services-sub000/internal/propublica"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/Breakdown/breakdown-services-sub000/internal/search"
	"github.com/Breakdown/breakdown-services-sub000/internal/users"
	"go.uber.org/zap"
)

// Task names.
const (
	TaskSyncRepresentatives     = "sync-representatives"
	TaskSyncBills               = "sync-bills"
	TaskSyncBillSubjects        = "sync-bill-subjects"
	TaskSyncBillIssues          = "sync-bill-issues"
	TaskSyncBillCosponsors      = "sync-bill-cosponsors"
	TaskSyncBillVotes           = "sync-bill-votes"
	TaskSyncRepresentativeVotes = "sync-representative-votes"
	TaskSyncBillFullText        = "sync-bill-full-text"
	TaskSyncBillSummary         = "sync-bill-summary"
	TaskSyncUpcomingBills       = "sync-upcoming-bills"
	TaskSyncSearchIndex         = "sync-search-index"
	TaskSendNotification        = "send-notification"
)

// ErrBillNotFound is returned when a per-bill task names a bill that is not stored.
var ErrBillNotFound = errors.New("jobs: bill not found")

// BillPayload scopes a per-bill task by bill code within the configured congress.
type BillPayload struct {
	Code string `json:"code"`
}

// BillVotePayload scopes a representative-vote task to one stored roll call.
type BillVotePayload struct {
	BillVoteID uint `json:"bill_vote_id"`
}

// NotificationPayload is one fanned-out notification.
type NotificationPayload struct {
	UserID  uint        `json:"user_id"`
	Type    notify.Type `json:"type"`
	BillIDs []uint      `json:"bill_ids"`
	RunID   string      `json:"run_id"`
}

// LegislativeSource supplies rosters, bills and votes.
type LegislativeSource interface {
	FetchMembers(ctx context.Context, chamber string, offset int) ([]propublica.Member, error)
	FetchBills(ctx context.Context, listType propublica.BillListType, offset int) ([]propublica.BillRecord, error)
	FetchSubjectsForBill(ctx context.Context, code string) ([]string, error)
	FetchCosponsorsForBill(ctx context.Context, code string) ([]propublica.CosponsorRecord, error)
	FetchVotesForBill(ctx context.Context, code string) ([]propublica.VoteRecord, error)
	FetchRepVotesForBillVote(ctx context.Context, apiURL string) ([]propublica.PositionRecord, error)
	FetchUpcomingBills(ctx context.Context, chamber string) ([]propublica.UpcomingBillRecord, error)
}

// TextSource supplies flattened bill text.
type TextSource interface {
	FetchBillText(ctx context.Context, congressNumber int, billType, code string) (congress.Document, error)
}

// Summarizer turns bill text into a plain-language summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Enqueuer persists follow-up tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, options queue.EnqueueOptions) (string, error)
}

// Sender delivers a notification to one user.
type Sender interface {
	Send(ctx context.Context, userID uint, notificationType notify.Type, data notify.Data) (bool, error)
}

// Config wires the handlers.
type Config struct {
	Store      *legislation.Store
	Users      *users.Service
	Source     LegislativeSource
	Text       TextSource
	Summarizer Summarizer
	// Indexer is optional; without it the search rebuild is skipped.
	Indexer  search.Indexer
	Cache    cache.Cache
	Sender   Sender
	Queue    Enqueuer
	Congress int
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Handlers holds one method per task type.
type Handlers struct {
	store      *legislation.Store
	users      *users.Service
	source     LegislativeSource
	text       TextSource
	summarizer Summarizer
	indexer    search.Indexer
	cache      cache.Cache
	sender     Sender
	queue      Enqueuer
	congress   int
	clock      func() time.Time
	logger     *zap.Logger
}

// New validates the configuration and builds the handlers.
func New(cfg Config) (*Handlers, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("jobs: store is required")
	case cfg.Users == nil:
		return nil, fmt.Errorf("jobs: users service is required")
	case cfg.Source == nil:
		return nil, fmt.Errorf("jobs: legislative source is required")
	case cfg.Text == nil:
		return nil, fmt.Errorf("jobs: text source is required")
	case cfg.Summarizer == nil:
		return nil, fmt.Errorf("jobs: summarizer is required")
	case cfg.Cache == nil:
		return nil, fmt.Errorf("jobs: cache is required")
	case cfg.Sender == nil:
		return nil, fmt.Errorf("jobs: notification sender is required")
	case cfg.Queue == nil:
		return nil, fmt.Errorf("jobs: queue is required")
	case cfg.Congress <= 0:
		return nil, fmt.Errorf("jobs: congress must be positive")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		store:      cfg.Store,
		users:      cfg.Users,
		source:     cfg.Source,
		text:       cfg.Text,
		summarizer: cfg.Summarizer,
		indexer:    cfg.Indexer,
		cache:      cfg.Cache,
		sender:     cfg.Sender,
		queue:      cfg.Queue,
		congress:   cfg.Congress,
		clock:      clock,
		logger:     logger,
	}, nil
}

// billForTask loads the bill named by a BillPayload.
func (h *Handlers) billForTask(ctx context.Context, task queue.Task) (*legislation.Bill, error) {
	var payload BillPayload
	if err := task.Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Code == "" {
		return nil, fmt.Errorf("jobs: %s payload has no bill code", task.Name)
	}
	bill, err := h.store.BillByCodeInCongress(ctx, payload.Code, h.congress)
	if errors.Is(err, legislation.ErrBillNotFound) {
		return nil, fmt.Errorf("%w: %s in congress %d", ErrBillNotFound, payload.Code, h.congress)
	}
	return bill, err
}

func (h *Handlers) enqueueForBill(ctx context.Context, name, code string) error {
	_, err := h.queue.Enqueue(ctx, name, BillPayload{Code: code}, queue.EnqueueOptions{})
	return err
}

// invalidate deletes one cache entry and logs a failure.
func (h *Handlers) invalidate(ctx context.Context, kind cache.Kind, ids ...uint) error {
	if err := cache.Invalidate(ctx, h.cache, kind, ids...); err != nil {
		h.logger.Warn("cache invalidation failed",
			zap.String("kind", kind.String()),
			zap.Uints("ids", ids),
			zap.Error(err))
		return err
	}
	return nil
}
