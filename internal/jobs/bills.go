package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Breakdown/breakdown-services-sub000/internal/changes"
	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/notify"
	"github.com/Breakdown/breakdown-services-sub000/internal/propublica"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/Breakdown/breakdown-services-sub000/internal/transform"
	"github.com/Breakdown/breakdown-services-sub000/internal/users"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	billPageSize = 20
	billPages    = 2
)

// billChildTasks are enqueued for every bill of a bills sync run.
var billChildTasks = []string{
	TaskSyncBillSubjects,
	TaskSyncBillCosponsors,
	TaskSyncBillVotes,
	TaskSyncBillFullText,
}

// SyncBills ingests the updated and introduced listings, queues notifications
// for changed bills and fans out the per-bill child syncs.
func (h *Handlers) SyncBills(ctx context.Context, task queue.Task) error {
	updated, introduced, err := h.fetchBillListings(ctx)
	if err != nil {
		return err
	}
	records := h.withBillCodes(transform.MergeBillRecords(updated, introduced))
	if len(records) == 0 {
		h.logger.Info("bill listings were empty", zap.String("task_id", task.ID))
		return nil
	}

	sponsorIDs := make([]string, 0, len(records))
	for _, record := range records {
		if record.SponsorID != "" {
			sponsorIDs = append(sponsorIDs, record.SponsorID)
		}
	}
	sponsors, err := h.store.RepresentativeIDs(ctx, sponsorIDs)
	if err != nil {
		return err
	}

	bills := make([]legislation.Bill, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, record := range records {
		bill := transform.BillFromRecord(record, h.congress)
		if sponsorID, ok := sponsors[record.SponsorID]; ok {
			bill.SponsorID = &sponsorID
		} else if record.SponsorID != "" {
			h.logger.Debug("bill sponsor not resolved",
				zap.String("bill_id", record.BillID),
				zap.String("sponsor_id", record.SponsorID))
		}
		bills = append(bills, bill)
		ids = append(ids, record.BillID)
	}

	previous, err := h.store.BillsByPropublicaIDs(ctx, ids)
	if err != nil {
		return err
	}
	if err := h.store.UpsertBills(ctx, bills); err != nil {
		return err
	}

	updatedIDs := make([]string, 0, len(updated))
	for _, record := range updated {
		if record.BillID != "" {
			updatedIDs = append(updatedIDs, record.BillID)
		}
	}
	queued, err := h.queueBillNotifications(ctx, task.ID, updatedIDs, previous)
	if err != nil {
		return err
	}

	for _, bill := range bills {
		for _, name := range billChildTasks {
			if err := h.enqueueForBill(ctx, name, bill.Code); err != nil {
				return err
			}
		}
	}

	h.logger.Info("bills synced",
		zap.String("task_id", task.ID),
		zap.Int("count", len(bills)),
		zap.Int("updated", len(updatedIDs)),
		zap.Int("notifications", queued))
	return nil
}

// withBillCodes drops listing records without a bill slug. Child syncs are
// addressed by bill code.
func (h *Handlers) withBillCodes(records []propublica.BillRecord) []propublica.BillRecord {
	kept := records[:0]
	for _, record := range records {
		if strings.TrimSpace(record.BillSlug) == "" {
			h.logger.Warn("bill listing record has no bill slug", zap.String("bill_id", record.BillID))
			continue
		}
		kept = append(kept, record)
	}
	return kept
}

func (h *Handlers) fetchBillListings(ctx context.Context) ([]propublica.BillRecord, []propublica.BillRecord, error) {
	listTypes := []propublica.BillListType{propublica.BillsUpdated, propublica.BillsIntroduced}
	pages := make([][]propublica.BillRecord, len(listTypes)*billPages)
	group, groupCtx := errgroup.WithContext(ctx)
	for i, listType := range listTypes {
		for page := 0; page < billPages; page++ {
			slot := i*billPages + page
			group.Go(func() error {
				records, err := h.source.FetchBills(groupCtx, listType, page*billPageSize)
				if err != nil {
					return fmt.Errorf("fetch %s bills at offset %d: %w", listType, page*billPageSize, err)
				}
				pages[slot] = records
				return nil
			})
		}
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	var updated, introduced []propublica.BillRecord
	for page := 0; page < billPages; page++ {
		updated = append(updated, pages[page]...)
		introduced = append(introduced, pages[billPages+page]...)
	}
	return updated, introduced, nil
}

// queueBillNotifications diffs the reloaded updated bills against their
// snapshots and queues one notification per user and type for the run.
func (h *Handlers) queueBillNotifications(ctx context.Context, runID string, updatedIDs []string, previous []legislation.Bill) (int, error) {
	reloaded, err := h.store.BillsWithRelations(ctx, updatedIDs)
	if err != nil {
		return 0, err
	}
	snapshots := make(map[string]legislation.Bill, len(previous))
	for _, bill := range previous {
		snapshots[bill.PropublicaID] = bill
	}

	recipients := make(map[notify.Type]map[uint][]uint)
	for _, bill := range reloaded {
		var snapshot *legislation.Bill
		if prior, ok := snapshots[bill.PropublicaID]; ok {
			snapshot = &prior
		}
		change := changes.CompareBill(snapshot, bill)
		if !change.Any() {
			continue
		}
		interested, err := h.users.InterestedUsers(ctx, users.BillInterest(bill))
		if err != nil {
			return 0, err
		}
		for notificationType, qualifies := range map[notify.Type]bool{
			notify.BillSummaryUpdated: change.SummaryUpdated,
			notify.BillVotedOn:        change.VotedOn,
		} {
			if !qualifies {
				continue
			}
			if recipients[notificationType] == nil {
				recipients[notificationType] = make(map[uint][]uint)
			}
			for _, userID := range interested {
				recipients[notificationType][userID] = append(recipients[notificationType][userID], bill.ID)
			}
		}
	}

	queued := 0
	for _, notificationType := range notify.Types() {
		byUser := recipients[notificationType]
		userIDs := make([]uint, 0, len(byUser))
		for userID := range byUser {
			userIDs = append(userIDs, userID)
		}
		sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
		for _, userID := range userIDs {
			payload := NotificationPayload{
				UserID:  userID,
				Type:    notificationType,
				BillIDs: byUser[userID],
				RunID:   runID,
			}
			if _, err := h.queue.Enqueue(ctx, TaskSendNotification, payload, queue.EnqueueOptions{}); err != nil {
				return queued, err
			}
			queued++
		}
	}
	return queued, nil
}
