package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("task-%04d", s.next), nil
}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestQueue(t *testing.T) (*Queue, *gorm.DB, *observer.ObservedLogs) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "queue.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	clock := &tickingClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	core, logs := observer.New(zapcore.DebugLevel)
	q, err := New(Config{
		Database:     db,
		Clock:        clock.Now,
		IDProvider:   &sequenceIDs{},
		Logger:       zap.New(core),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build queue: %v", err)
	}
	return q, db, logs
}

func mustRegister(t *testing.T, q *Queue, name string, handler Handler, concurrency int) {
	t.Helper()
	if err := q.Register(name, handler, RegisterOptions{Concurrency: concurrency}); err != nil {
		t.Fatalf("failed to register %s: %v", name, err)
	}
}

func mustEnqueue(t *testing.T, q *Queue, name string, payload any) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), name, payload, EnqueueOptions{})
	if err != nil {
		t.Fatalf("failed to enqueue %s: %v", name, err)
	}
	return id
}

func mustGet(t *testing.T, q *Queue, id string) *Task {
	t.Helper()
	task, err := q.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load task %s: %v", id, err)
	}
	return task
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(Config{})
	var queueErr *Error
	if !errors.As(err, &queueErr) || queueErr.Code() != "queue.new.missing_database" {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestDrainRunsTasksInOrderAndChainsChildren(t *testing.T) {
	q, _, _ := newTestQueue(t)
	var seen []string
	mustRegister(t, q, "parent", func(ctx context.Context, task Task) error {
		var payload struct {
			Code string `json:"code"`
		}
		if err := task.Decode(&payload); err != nil {
			return err
		}
		seen = append(seen, "parent:"+payload.Code)
		_, err := q.Enqueue(ctx, "child", map[string]string{"code": payload.Code}, EnqueueOptions{})
		return err
	}, 1)
	mustRegister(t, q, "child", func(_ context.Context, task Task) error {
		seen = append(seen, "child:"+task.Payload)
		return nil
	}, 1)

	first := mustEnqueue(t, q, "parent", map[string]string{"code": "hr1"})
	mustEnqueue(t, q, "parent", map[string]string{"code": "hr2"})

	processed, err := q.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if processed != 4 {
		t.Fatalf("expected 4 tasks processed, got %d", processed)
	}
	want := []string{"parent:hr1", "parent:hr2", `child:{"code":"hr1"}`, `child:{"code":"hr2"}`}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("unexpected order %v", seen)
	}

	task := mustGet(t, q, first)
	if task.State != StateCompleted || task.Attempts != 1 || task.StartedAt == nil || task.FinishedAt == nil {
		t.Fatalf("unexpected completed task %+v", task)
	}
}

func TestFailingAndPanickingHandlersMarkTaskFailed(t *testing.T) {
	q, _, logs := newTestQueue(t)
	mustRegister(t, q, "broken", func(context.Context, Task) error {
		return errors.New("upstream unavailable")
	}, 1)
	mustRegister(t, q, "explosive", func(context.Context, Task) error {
		panic("boom")
	}, 1)

	broken := mustEnqueue(t, q, "broken", map[string]string{"code": "s5"})
	explosive := mustEnqueue(t, q, "explosive", nil)

	if _, err := q.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if task := mustGet(t, q, broken); task.State != StateFailed || task.LastError != "upstream unavailable" {
		t.Fatalf("unexpected broken task %+v", task)
	}
	if task := mustGet(t, q, explosive); task.State != StateFailed || task.LastError != "panic: boom" {
		t.Fatalf("unexpected explosive task %+v", task)
	}

	failures := logs.FilterMessage("task failed").All()
	if len(failures) != 2 {
		t.Fatalf("expected 2 failure logs, got %d", len(failures))
	}
	fields := failures[0].ContextMap()
	if fields["task_id"] != broken || fields["task_name"] != "broken" || fields["payload"] != `{"code":"s5"}` {
		t.Fatalf("unexpected failure log fields %+v", fields)
	}
	if logs.FilterMessage("task handler panicked").Len() != 1 {
		t.Fatalf("expected panic log")
	}
}

func TestProcessNextUnknownName(t *testing.T) {
	q, _, _ := newTestQueue(t)
	if _, err := q.ProcessNext(context.Background(), "missing"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected unknown task error, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	q, _, _ := newTestQueue(t)
	handler := func(context.Context, Task) error { return nil }
	mustRegister(t, q, "sync", handler, 1)
	if err := q.Register("sync", handler, RegisterOptions{}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if !q.Registered("sync") || q.Registered("other") {
		t.Fatalf("unexpected registration state")
	}
}

func TestStartBoundsConcurrencyPerName(t *testing.T) {
	q, _, _ := newTestQueue(t)
	var running, peak, done int32
	mustRegister(t, q, "fanout", func(context.Context, Task) error {
		current := atomic.AddInt32(&running, 1)
		for {
			observed := atomic.LoadInt32(&peak)
			if current <= observed || atomic.CompareAndSwapInt32(&peak, observed, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&done, 1)
		return nil
	}, 2)

	for i := 0; i < 6; i++ {
		mustEnqueue(t, q, "fanout", map[string]int{"n": i})
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&done) < 6 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	q.Wait()

	if got := atomic.LoadInt32(&done); got != 6 {
		t.Fatalf("expected 6 tasks to run, got %d", got)
	}
	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, observed %d", got)
	}
	if err := q.Register("late", func(context.Context, Task) error { return nil }, RegisterOptions{}); err == nil {
		t.Fatalf("expected registration after start to fail")
	}
}

func TestStartRecoversStaleActiveTasks(t *testing.T) {
	q, db, logs := newTestQueue(t)
	var ran int32
	mustRegister(t, q, "reps", func(context.Context, Task) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}, 1)
	started := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	stale := Task{ID: "stale", Name: "reps", Payload: "{}", State: StateActive, Attempts: 1, CreatedAt: started, StartedAt: &started}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("failed to seed stale task: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&ran) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	q.Wait()

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected recovered task to run once")
	}
	task := mustGet(t, q, "stale")
	if task.State != StateCompleted || task.Attempts != 2 {
		t.Fatalf("unexpected recovered task %+v", task)
	}
	if logs.FilterMessage("recovered stale tasks").Len() != 1 {
		t.Fatalf("expected recovery log")
	}
}

func TestRepeatSchedulesAreDeduplicated(t *testing.T) {
	q, db, _ := newTestQueue(t)
	first, err := q.Enqueue(context.Background(), "bills", nil, EnqueueOptions{Repeat: "0 6,18 * * *"})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	second, err := q.Enqueue(context.Background(), "bills", nil, EnqueueOptions{Repeat: "0 6,18 * * *"})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if first != second || first != "bills@0 6,18 * * *" {
		t.Fatalf("expected identical schedule keys, got %q and %q", first, second)
	}
	if _, err := q.Enqueue(context.Background(), "bills", nil, EnqueueOptions{Repeat: "not a cron"}); err == nil {
		t.Fatalf("expected invalid expression error")
	}
	if schedules := q.Schedules(); len(schedules) != 1 || schedules[0].Name != "bills" {
		t.Fatalf("unexpected schedules %+v", schedules)
	}
	var count int64
	if err := db.Model(&Task{}).Count(&count).Error; err != nil || count != 0 {
		t.Fatalf("expected no tasks persisted for a schedule, got %d (%v)", count, err)
	}
}

func TestListFiltersByNameAndState(t *testing.T) {
	q, _, _ := newTestQueue(t)
	mustRegister(t, q, "ok", func(context.Context, Task) error { return nil }, 1)
	mustRegister(t, q, "bad", func(context.Context, Task) error { return errors.New("nope") }, 1)
	mustEnqueue(t, q, "ok", nil)
	mustEnqueue(t, q, "bad", nil)
	mustEnqueue(t, q, "bad", nil)
	if _, err := q.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	waiting := mustEnqueue(t, q, "ok", nil)

	tests := []struct {
		name   string
		filter ListFilter
		want   int
	}{
		{name: "all", filter: ListFilter{}, want: 4},
		{name: "by name", filter: ListFilter{Name: "bad"}, want: 2},
		{name: "by state", filter: ListFilter{State: StateFailed}, want: 2},
		{name: "name and state", filter: ListFilter{Name: "ok", State: StateWaiting}, want: 1},
		{name: "limited", filter: ListFilter{Limit: 1}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := q.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(tasks) != tt.want {
				t.Fatalf("expected %d tasks, got %d", tt.want, len(tasks))
			}
		})
	}

	newest, err := q.List(context.Background(), ListFilter{Limit: 1})
	if err != nil || newest[0].ID != waiting {
		t.Fatalf("expected newest task first, got %+v (%v)", newest, err)
	}
	if _, err := q.Get(context.Background(), "absent"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
