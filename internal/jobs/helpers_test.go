package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/cache"
	"github.com/Breakdown/breakdown-services-sub000/internal/congress"
	"github.com/Breakdown/breakdown-services-sub000/internal/database"
	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/notify"
	"github.com/Breakdown/breakdown-services-sub000/internal/propublica"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/Breakdown/breakdown-services-sub000/internal/users"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testCongress = 118

func stringPtr(value string) *string {
	return &value
}

type fakeSource struct {
	mu         sync.Mutex
	calls      map[string]int
	members    map[string][]propublica.Member
	bills      map[string][]propublica.BillRecord
	subjects   map[string][]string
	cosponsors map[string][]propublica.CosponsorRecord
	votes      map[string][]propublica.VoteRecord
	positions  map[string][]propublica.PositionRecord
	upcoming   map[string][]propublica.UpcomingBillRecord
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:      make(map[string]int),
		members:    make(map[string][]propublica.Member),
		bills:      make(map[string][]propublica.BillRecord),
		subjects:   make(map[string][]string),
		cosponsors: make(map[string][]propublica.CosponsorRecord),
		votes:      make(map[string][]propublica.VoteRecord),
		positions:  make(map[string][]propublica.PositionRecord),
		upcoming:   make(map[string][]propublica.UpcomingBillRecord),
	}
}

func billsKey(listType propublica.BillListType, offset int) string {
	return fmt.Sprintf("%s:%d", listType, offset)
}

func (s *fakeSource) record(method string) {
	s.mu.Lock()
	s.calls[method]++
	s.mu.Unlock()
}

func (s *fakeSource) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *fakeSource) setBills(listType propublica.BillListType, offset int, records ...propublica.BillRecord) {
	s.mu.Lock()
	s.bills[billsKey(listType, offset)] = records
	s.mu.Unlock()
}

func (s *fakeSource) FetchMembers(_ context.Context, chamber string, offset int) ([]propublica.Member, error) {
	s.record("members")
	if offset > 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[chamber], nil
}

func (s *fakeSource) FetchBills(_ context.Context, listType propublica.BillListType, offset int) ([]propublica.BillRecord, error) {
	s.record("bills")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bills[billsKey(listType, offset)], nil
}

func (s *fakeSource) FetchSubjectsForBill(_ context.Context, code string) ([]string, error) {
	s.record("subjects")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subjects[code], nil
}

func (s *fakeSource) FetchCosponsorsForBill(_ context.Context, code string) ([]propublica.CosponsorRecord, error) {
	s.record("cosponsors")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cosponsors[code], nil
}

func (s *fakeSource) FetchVotesForBill(_ context.Context, code string) ([]propublica.VoteRecord, error) {
	s.record("votes")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes[code], nil
}

func (s *fakeSource) FetchRepVotesForBillVote(_ context.Context, apiURL string) ([]propublica.PositionRecord, error) {
	s.record("positions")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[apiURL], nil
}

func (s *fakeSource) FetchUpcomingBills(_ context.Context, chamber string) ([]propublica.UpcomingBillRecord, error) {
	s.record("upcoming")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upcoming[chamber], nil
}

type fakeText struct {
	mu        sync.Mutex
	calls     int
	documents map[string]congress.Document
}

func (f *fakeText) FetchBillText(_ context.Context, congressNumber int, billType, code string) (congress.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	document, ok := f.documents[code]
	if !ok {
		return congress.Document{}, fmt.Errorf("%w: %s", congress.ErrTextNotPublished, code)
	}
	return document, nil
}

type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

type fakeIndexer struct {
	calls     []string
	documents map[string]any
	err       error
}

func (f *fakeIndexer) DeleteIndex(_ context.Context, uid string) error {
	f.calls = append(f.calls, "delete:"+uid)
	return f.err
}

func (f *fakeIndexer) CreateIndex(_ context.Context, uid, primaryKey string) error {
	f.calls = append(f.calls, "create:"+uid)
	return nil
}

func (f *fakeIndexer) AddDocuments(_ context.Context, uid string, documents any) error {
	f.calls = append(f.calls, "add:"+uid)
	if f.documents == nil {
		f.documents = make(map[string]any)
	}
	f.documents[uid] = documents
	return nil
}

type testEnv struct {
	db         *gorm.DB
	store      *legislation.Store
	users      *users.Service
	queue      *queue.Queue
	handlers   *Handlers
	cache      *cache.MemoryCache
	source     *fakeSource
	text       *fakeText
	summarizer *fakeSummarizer
	indexer    *fakeIndexer
	logs       *observer.ObservedLogs
	now        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "jobs.db"), nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	env := &testEnv{
		db:         db,
		source:     newFakeSource(),
		text:       &fakeText{documents: make(map[string]congress.Document)},
		summarizer: &fakeSummarizer{summary: "A plain summary."},
		indexer:    &fakeIndexer{},
		logs:       logs,
		now:        time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	env.cache = cache.NewMemoryCache(clock)

	env.store, err = legislation.NewStore(legislation.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	env.users, err = users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	sender, err := notify.NewSender(notify.SenderConfig{Database: db, Clock: clock, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build sender: %v", err)
	}
	env.queue, err = queue.New(queue.Config{Database: db, Clock: clock, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build queue: %v", err)
	}
	env.handlers, err = New(Config{
		Store:      env.store,
		Users:      env.users,
		Source:     env.source,
		Text:       env.text,
		Summarizer: env.summarizer,
		Indexer:    env.indexer,
		Cache:      env.cache,
		Sender:     sender,
		Queue:      env.queue,
		Congress:   testCongress,
		Clock:      clock,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	orchestrator, err := NewOrchestrator(env.queue, env.handlers, logger)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}
	if err := orchestrator.Register(); err != nil {
		t.Fatalf("failed to register handlers: %v", err)
	}
	return env
}

func billTask(name, code string) queue.Task {
	return queue.Task{ID: "task-" + code, Name: name, Payload: fmt.Sprintf(`{"code":%q}`, code)}
}

func (e *testEnv) mustUpsertBill(t *testing.T, bill legislation.Bill) legislation.Bill {
	t.Helper()
	if bill.Congress == 0 {
		bill.Congress = testCongress
	}
	if err := e.store.UpsertBills(context.Background(), []legislation.Bill{bill}); err != nil {
		t.Fatalf("failed to upsert bill: %v", err)
	}
	loaded, err := e.store.BillByCodeInCongress(context.Background(), bill.Code, bill.Congress)
	if err != nil {
		t.Fatalf("failed to reload bill: %v", err)
	}
	return *loaded
}

func (e *testEnv) mustUpsertRepresentatives(t *testing.T, representatives ...legislation.Representative) map[string]uint {
	t.Helper()
	ids := make([]string, 0, len(representatives))
	for i := range representatives {
		if representatives[i].Chamber == "" {
			representatives[i].Chamber = legislation.ChamberHouse
		}
		ids = append(ids, representatives[i].PropublicaID)
	}
	if err := e.store.UpsertRepresentatives(context.Background(), representatives); err != nil {
		t.Fatalf("failed to upsert representatives: %v", err)
	}
	resolved, err := e.store.RepresentativeIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("failed to resolve representatives: %v", err)
	}
	return resolved
}

func (e *testEnv) mustCreateUser(t *testing.T, email string) uint {
	t.Helper()
	user, err := e.users.CreateUser(context.Background(), users.User{Email: email})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user.ID
}

func (e *testEnv) mustIssueID(t *testing.T, slug string) uint {
	t.Helper()
	var issue legislation.Issue
	if err := e.db.Where("slug = ?", slug).Take(&issue).Error; err != nil {
		t.Fatalf("failed to load issue %s: %v", slug, err)
	}
	return issue.ID
}

func (e *testEnv) waitingTasks(t *testing.T, name string) []queue.Task {
	t.Helper()
	tasks, err := e.queue.List(context.Background(), queue.ListFilter{Name: name, State: queue.StateWaiting, Limit: 1000})
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	return tasks
}

func (e *testEnv) mustDrain(t *testing.T) {
	t.Helper()
	if _, err := e.queue.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	failed, err := e.queue.List(context.Background(), queue.ListFilter{State: queue.StateFailed})
	if err != nil {
		t.Fatalf("failed to list failed tasks: %v", err)
	}
	for _, task := range failed {
		t.Errorf("task %s (%s) failed: %s", task.Name, task.Payload, task.LastError)
	}
	if len(failed) > 0 {
		t.FailNow()
	}
}

func (e *testEnv) cached(t *testing.T, kind cache.Kind, ids ...uint) bool {
	t.Helper()
	key, err := cache.Key(kind, ids...)
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}
	_, err = e.cache.Get(context.Background(), key)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("cache read failed: %v", err)
	}
	return err == nil
}

func (e *testEnv) mustCache(t *testing.T, kind cache.Kind, ids ...uint) {
	t.Helper()
	if err := cache.Put(context.Background(), e.cache, kind, []byte("cached"), ids...); err != nil {
		t.Fatalf("failed to populate cache: %v", err)
	}
}
