package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/congress"
	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/notify"
	"github.com/Breakdown/breakdown-services-sub000/internal/propublica"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
)

func hr100Record(lastVote *string) propublica.BillRecord {
	return propublica.BillRecord{
		BillID:         "hr100-118",
		BillSlug:       "hr100",
		BillType:       "hr",
		Number:         "H.R.100",
		Title:          "Clean Rivers Act",
		PrimarySubject: "Environmental Protection",
		LastVote:       lastVote,
	}
}

func (e *testEnv) deliveries(t *testing.T, userID uint) []notify.Delivery {
	t.Helper()
	var rows []notify.Delivery
	if err := e.db.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("failed to load deliveries: %v", err)
	}
	return rows
}

func TestBillLifecycleFromIntroductionToVote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.mustCreateUser(t, "rivers@example.test")
	if err := env.users.FollowIssue(ctx, user, env.mustIssueID(t, "environment")); err != nil {
		t.Fatalf("follow failed: %v", err)
	}
	env.source.subjects["hr100"] = []string{"Environmental Protection"}

	env.source.setBills(propublica.BillsUpdated, 0, hr100Record(nil))
	if _, err := env.queue.Enqueue(ctx, TaskSyncBills, nil, queue.EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	env.mustDrain(t)

	if got := env.deliveries(t, user); len(got) != 0 {
		t.Fatalf("expected no deliveries for a new bill without a vote, got %+v", got)
	}
	if got := env.source.callCount("votes"); got != 0 {
		t.Fatalf("expected zero vote fetches before a vote, got %d", got)
	}
	bill, err := env.store.BillByCodeInCongress(ctx, "hr100", testCongress)
	if err != nil {
		t.Fatalf("failed to load bill: %v", err)
	}
	if bill.PrimaryIssue == nil || bill.PrimaryIssue.Slug != "environment" {
		t.Fatalf("expected environment primary issue, got %+v", bill.PrimaryIssue)
	}

	env.source.setBills(propublica.BillsUpdated, 0, hr100Record(stringPtr("2024-06-01")))
	env.source.votes["hr100"] = []propublica.VoteRecord{{
		Chamber:  "House",
		Date:     "2024-06-01",
		Time:     "12:15:00",
		RollCall: 250,
		Result:   "Passed",
		APIURL:   "https://example.test/118/house/sessions/2/votes/250.json",
	}}
	runID, err := env.queue.Enqueue(ctx, TaskSyncBills, nil, queue.EnqueueOptions{})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	env.mustDrain(t)

	got := env.deliveries(t, user)
	if len(got) != 1 {
		t.Fatalf("expected one delivery after the vote, got %+v", got)
	}
	if got[0].Type != notify.BillVotedOn.String() || got[0].RunID != runID || len(got[0].BillIDs) != 1 || got[0].BillIDs[0] != bill.ID {
		t.Fatalf("unexpected delivery %+v", got[0])
	}
	if calls := env.source.callCount("votes"); calls != 1 {
		t.Fatalf("expected one vote fetch, got %d", calls)
	}
	votes, err := env.store.BillVotesByBill(ctx, bill.ID)
	if err != nil || len(votes) != 1 || votes[0].RollCall != 250 {
		t.Fatalf("expected the roll call to be stored, got %+v (%v)", votes, err)
	}
}

func TestNotificationRedeliverySendsOnce(t *testing.T) {
	env := newTestEnv(t)
	user := env.mustCreateUser(t, "twice@example.test")
	payload := NotificationPayload{UserID: user, Type: notify.BillSummaryUpdated, BillIDs: []uint{7}, RunID: "run-7"}
	for i := 0; i < 2; i++ {
		if _, err := env.queue.Enqueue(context.Background(), TaskSendNotification, payload, queue.EnqueueOptions{}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	env.mustDrain(t)
	if got := env.deliveries(t, user); len(got) != 1 {
		t.Fatalf("expected a single delivery, got %d", len(got))
	}
}

func TestOrchestratorStartSweepsBacklog(t *testing.T) {
	env := newTestEnv(t)
	bill := env.mustUpsertBill(t, legislation.Bill{PropublicaID: "s200-118", Code: "s200", BillType: "s"})
	env.text.documents["s200"] = congress.Document{Text: "Be it enacted.\n"}

	workers, err := queue.New(queue.Config{
		Database:     env.db,
		Clock:        func() time.Time { return env.now },
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build queue: %v", err)
	}
	orchestrator, err := NewOrchestrator(workers, env.handlers, nil)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		workers.Wait()
	}()
	if err := orchestrator.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := len(workers.Schedules()); got != 4 {
		t.Fatalf("expected 4 schedules, got %d", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		loaded, err := env.store.BillByCodeInCongress(context.Background(), "s200", testCongress)
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if loaded.AISummary != "" {
			if loaded.FullText == nil || loaded.FullText.BillID != bill.ID {
				t.Fatalf("expected text for the swept bill, got %+v", loaded.FullText)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("backlog sweep did not complete")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
