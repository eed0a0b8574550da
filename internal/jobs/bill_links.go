package jobs

import (
	"context"

	"github.com/Breakdown/breakdown-services-sub000/internal/cache"
	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/Breakdown/breakdown-services-sub000/internal/transform"
	"go.uber.org/zap"
)

// SyncBillSubjects replaces the subject set of a bill and queues issue matching.
func (h *Handlers) SyncBillSubjects(ctx context.Context, task queue.Task) error {
	bill, err := h.billForTask(ctx, task)
	if err != nil {
		return err
	}
	subjects, err := h.source.FetchSubjectsForBill(ctx, bill.Code)
	if err != nil {
		return err
	}
	if err := h.store.ReplaceBillSubjects(ctx, bill.ID, subjects); err != nil {
		return err
	}
	return h.enqueueForBill(ctx, TaskSyncBillIssues, bill.Code)
}

// SyncBillIssues links the primary and secondary issues matching the bill's subjects.
func (h *Handlers) SyncBillIssues(ctx context.Context, task queue.Task) error {
	bill, err := h.billForTask(ctx, task)
	if err != nil {
		return err
	}
	if bill.PrimarySubject == "" && len(bill.Subjects) == 0 {
		h.logger.Debug("bill has no subjects to match", zap.String("code", bill.Code))
		return nil
	}
	issues, err := h.store.ListIssues(ctx)
	if err != nil {
		return err
	}
	match := transform.MatchIssues(bill.PrimarySubject, bill.Subjects, issues)
	return h.store.SetBillIssues(ctx, bill.ID, match.PrimaryIssueID, match.SecondaryIssueIDs)
}

// SyncBillCosponsors links cosponsors once; bills that already have any are left alone.
func (h *Handlers) SyncBillCosponsors(ctx context.Context, task queue.Task) error {
	bill, err := h.billForTask(ctx, task)
	if err != nil {
		return err
	}
	if len(bill.Cosponsors) > 0 {
		return nil
	}
	records, err := h.source.FetchCosponsorsForBill(ctx, bill.Code)
	if err != nil {
		return err
	}
	externalIDs := make([]string, 0, len(records))
	for _, record := range records {
		if record.CosponsorID != "" {
			externalIDs = append(externalIDs, record.CosponsorID)
		}
	}
	resolved, err := h.store.RepresentativeIDs(ctx, externalIDs)
	if err != nil {
		return err
	}

	linked := make(map[uint]struct{}, len(resolved))
	representativeIDs := make([]uint, 0, len(resolved))
	for _, externalID := range externalIDs {
		representativeID, ok := resolved[externalID]
		if !ok {
			h.logger.Debug("cosponsor not resolved", zap.String("code", bill.Code), zap.String("cosponsor_id", externalID))
			continue
		}
		if _, ok := linked[representativeID]; ok {
			continue
		}
		linked[representativeID] = struct{}{}
		representativeIDs = append(representativeIDs, representativeID)
	}
	return h.store.LinkCosponsors(ctx, bill.ID, representativeIDs)
}

// SyncBillVotes stores the roll calls of a bill that has been voted on and
// queues one position sync per roll call.
func (h *Handlers) SyncBillVotes(ctx context.Context, task queue.Task) error {
	bill, err := h.billForTask(ctx, task)
	if err != nil {
		return err
	}
	if bill.LastVote == nil {
		return nil
	}
	records, err := h.source.FetchVotesForBill(ctx, bill.Code)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(records))
	votes := make([]legislation.BillVote, 0, len(records))
	for _, record := range records {
		if record.APIURL == "" {
			continue
		}
		if _, ok := seen[record.APIURL]; ok {
			continue
		}
		vote, err := transform.BillVoteFromRecord(record, bill.ID, bill.Congress)
		if err != nil {
			h.logger.Warn("skipping roll call with unreadable timestamp",
				zap.String("code", bill.Code),
				zap.String("api_url", record.APIURL),
				zap.Error(err))
			continue
		}
		seen[record.APIURL] = struct{}{}
		votes = append(votes, vote)
	}
	if _, err := h.store.UpsertBillVotes(ctx, votes); err != nil {
		return err
	}

	stored, err := h.store.BillVotesByBill(ctx, bill.ID)
	if err != nil {
		return err
	}
	for _, vote := range stored {
		if _, err := h.queue.Enqueue(ctx, TaskSyncRepresentativeVotes, BillVotePayload{BillVoteID: vote.ID}, queue.EnqueueOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// SyncRepresentativeVotes stores each member's position on one roll call.
func (h *Handlers) SyncRepresentativeVotes(ctx context.Context, task queue.Task) error {
	var payload BillVotePayload
	if err := task.Decode(&payload); err != nil {
		return err
	}
	vote, err := h.store.BillVoteByID(ctx, payload.BillVoteID)
	if err != nil {
		return err
	}
	positions, err := h.source.FetchRepVotesForBillVote(ctx, vote.APIURL)
	if err != nil {
		return err
	}

	memberIDs := make([]string, 0, len(positions))
	for _, position := range positions {
		if position.MemberID != "" {
			memberIDs = append(memberIDs, position.MemberID)
		}
	}
	resolved, err := h.store.RepresentativeIDs(ctx, memberIDs)
	if err != nil {
		return err
	}

	seen := make(map[uint]struct{}, len(resolved))
	rows := make([]legislation.RepresentativeVote, 0, len(resolved))
	for _, position := range positions {
		representativeID, ok := resolved[position.MemberID]
		if !ok {
			h.logger.Debug("vote member not resolved",
				zap.Uint("bill_vote_id", vote.ID),
				zap.String("member_id", position.MemberID))
			continue
		}
		if _, ok := seen[representativeID]; ok {
			continue
		}
		seen[representativeID] = struct{}{}
		rows = append(rows, transform.RepresentativeVoteFromPosition(position, representativeID, *vote))
	}
	if err := h.store.UpsertRepresentativeVotes(ctx, rows); err != nil {
		return err
	}

	for _, row := range rows {
		if err := h.invalidate(ctx, cache.RepresentativeVotes, row.RepresentativeID); err != nil {
			return err
		}
		if err := h.invalidate(ctx, cache.RepresentativeBillPosition, row.RepresentativeID, row.BillID); err != nil {
			return err
		}
	}
	return nil
}
