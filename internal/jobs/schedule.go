package jobs

import (
	"context"
	"fmt"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/notify"
	"github.com/Breakdown/breakdown-services-sub000/internal/propublica"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/Breakdown/breakdown-services-sub000/internal/search"
	"github.com/Breakdown/breakdown-services-sub000/internal/transform"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SyncUpcomingBills copies floor schedules onto bills already stored.
func (h *Handlers) SyncUpcomingBills(ctx context.Context, task queue.Task) error {
	listings := make([][]propublica.UpcomingBillRecord, len(chambers))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, chamber := range chambers {
		group.Go(func() error {
			records, err := h.source.FetchUpcomingBills(groupCtx, chamber.String())
			if err != nil {
				return fmt.Errorf("fetch %s upcoming bills: %w", chamber, err)
			}
			listings[i] = records
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	var schedules []legislation.BillSchedule
	for _, records := range listings {
		for _, record := range records {
			schedule := transform.ScheduleFromUpcoming(record, h.congress)
			if schedule.PropublicaID == "" {
				continue
			}
			schedules = append(schedules, schedule)
		}
	}
	updated, err := h.store.UpdateBillSchedules(ctx, schedules)
	if err != nil {
		return err
	}
	h.logger.Info("upcoming bills synced",
		zap.String("task_id", task.ID),
		zap.Int("listed", len(schedules)),
		zap.Int("updated", updated))
	return nil
}

// SyncSearchIndex rebuilds every search index from the store.
func (h *Handlers) SyncSearchIndex(ctx context.Context, task queue.Task) error {
	if h.indexer == nil {
		h.logger.Warn("search index sync skipped: no search engine configured", zap.String("task_id", task.ID))
		return nil
	}
	bills, err := h.store.ListBillsForIndex(ctx)
	if err != nil {
		return err
	}
	representatives, err := h.store.ListRepresentatives(ctx)
	if err != nil {
		return err
	}
	issues, err := h.store.ListIssues(ctx)
	if err != nil {
		return err
	}
	counts, err := search.Rebuild(ctx, h.indexer, search.Corpus{
		Bills:           bills,
		Representatives: representatives,
		Issues:          issues,
	})
	if err != nil {
		return err
	}
	h.logger.Info("search index rebuilt",
		zap.String("task_id", task.ID),
		zap.Int("bills", counts.Bills),
		zap.Int("representatives", counts.Representatives),
		zap.Int("issues", counts.Issues))
	return nil
}

// SendNotification delivers one fanned-out notification.
func (h *Handlers) SendNotification(ctx context.Context, task queue.Task) error {
	var payload NotificationPayload
	if err := task.Decode(&payload); err != nil {
		return err
	}
	_, err := h.sender.Send(ctx, payload.UserID, payload.Type, notify.Data{
		BillIDs: payload.BillIDs,
		RunID:   payload.RunID,
	})
	return err
}
