package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/cache"
	"github.com/Breakdown/breakdown-services-sub000/internal/congress"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"go.uber.org/zap"
)

// fullTextFreshness is how long stored text is trusted before a refetch.
const fullTextFreshness = 72 * time.Hour

// SyncBillFullText fetches and flattens the introduced text of hr and s bills.
func (h *Handlers) SyncBillFullText(ctx context.Context, task queue.Task) error {
	bill, err := h.billForTask(ctx, task)
	if err != nil {
		return err
	}
	if !congress.SupportedBillType(bill.BillType) {
		h.logger.Debug("bill type has no fetched text", zap.String("code", bill.Code), zap.String("bill_type", bill.BillType))
		return nil
	}
	now := h.clock().UTC()
	if bill.FullText != nil && bill.JobData.LastFullTextSync != nil && now.Sub(*bill.JobData.LastFullTextSync) < fullTextFreshness {
		return nil
	}

	document, err := h.text.FetchBillText(ctx, bill.Congress, bill.BillType, bill.Code)
	if errors.Is(err, congress.ErrTextNotPublished) {
		h.logger.Info("bill text not yet published", zap.String("code", bill.Code))
		return nil
	}
	if err != nil {
		return err
	}

	if bill.FullText != nil && bill.FullText.Text == document.Text {
		return h.store.TouchFullTextSync(ctx, bill.ID, now)
	}
	if err := h.store.SaveFullText(ctx, bill.ID, document.Text, document.SourceURL, now); err != nil {
		return err
	}
	if err := h.invalidate(ctx, cache.BillDetail, bill.ID); err != nil {
		return err
	}
	h.logger.Info("bill text stored", zap.String("code", bill.Code), zap.Int("text_length", len(document.Text)))
	return h.enqueueForBill(ctx, TaskSyncBillSummary, bill.Code)
}

// SyncBillSummary generates the AI summary once per bill.
func (h *Handlers) SyncBillSummary(ctx context.Context, task queue.Task) error {
	bill, err := h.billForTask(ctx, task)
	if err != nil {
		return err
	}
	if bill.AISummary != "" {
		return nil
	}
	if bill.FullText == nil || strings.TrimSpace(bill.FullText.Text) == "" {
		h.logger.Debug("bill has no text to summarize", zap.String("code", bill.Code))
		return nil
	}

	summary, err := h.summarizer.Summarize(ctx, bill.FullText.Text)
	if err != nil {
		return err
	}
	if err := h.store.SaveAISummary(ctx, bill.ID, summary, h.clock()); err != nil {
		return err
	}
	return h.invalidate(ctx, cache.BillDetail, bill.ID)
}

// EnqueueFullTextBacklog queues a text sync for every stored bill of a
// fetchable type that has no text yet, and reports how many were queued.
func (h *Handlers) EnqueueFullTextBacklog(ctx context.Context) (int, error) {
	bills, err := h.store.BillsMissingFullText(ctx, congress.SupportedBillTypes())
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, bill := range bills {
		if bill.Congress != h.congress {
			continue
		}
		if err := h.enqueueForBill(ctx, TaskSyncBillFullText, bill.Code); err != nil {
			return queued, err
		}
		queued++
	}
	h.logger.Info("full text backlog queued", zap.Int("count", queued))
	return queued, nil
}
