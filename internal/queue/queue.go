// Package queue is a durable task queue with per-name worker pools and cron schedules.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrTaskNotFound indicates that no task has the requested id.
	ErrTaskNotFound = errors.New("queue: task not found")
	// ErrUnknownTask indicates that no handler is registered for the name.
	ErrUnknownTask = errors.New("queue: no handler registered")

	errMissingDatabase = errors.New("database handle is required")
	errAlreadyStarted  = errors.New("queue already started")
)

const (
	defaultPollInterval = time.Second
	defaultListLimit    = 100
	maxListLimit        = 1000
	claimAttempts       = 5
)

const (
	opQueueNew = "queue.new"
	opRegister = "queue.register"
	opEnqueue  = "queue.enqueue"
	opSchedule = "queue.schedule"
	opClaim    = "queue.claim"
	opFinish   = "queue.finish"
	opRecover  = "queue.recover"
	opList     = "queue.list"
)

// Error carries a stable operation.reason code alongside the cause.
type Error struct {
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Code() string {
	return e.code
}

func newQueueError(operation, reason string, cause error) error {
	return &Error{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Config wires the queue.
type Config struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   IDProvider
	Logger       *zap.Logger
	PollInterval time.Duration
	// Location is the time zone cron expressions are evaluated in.
	Location *time.Location
}

// RegisterOptions tunes a handler registration.
type RegisterOptions struct {
	// Concurrency bounds how many tasks of the name run at once. Defaults to 1.
	Concurrency int
}

// EnqueueOptions tunes an enqueue.
type EnqueueOptions struct {
	// Repeat is a standard five-field cron expression. When set, a recurring
	// schedule is registered instead of a single task.
	Repeat string
}

// Schedule describes a registered recurring enqueue.
type Schedule struct {
	Key  string    `json:"key"`
	Name string    `json:"name"`
	Expr string    `json:"expr"`
	Next time.Time `json:"next"`
}

type registration struct {
	name        string
	handler     Handler
	concurrency int
	wake        chan struct{}
}

type scheduleEntry struct {
	name    string
	expr    string
	entryID cron.EntryID
}

// Queue dispatches persisted tasks to registered handlers.
type Queue struct {
	db           *gorm.DB
	clock        func() time.Time
	ids          IDProvider
	logger       *zap.Logger
	pollInterval time.Duration
	cron         *cron.Cron

	mu        sync.Mutex
	handlers  map[string]*registration
	schedules map[string]scheduleEntry
	started   bool
	wg        sync.WaitGroup
}

// New validates the configuration and builds a Queue.
func New(cfg Config) (*Queue, error) {
	if cfg.Database == nil {
		return nil, newQueueError(opQueueNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	cronLog := cronLogger{logger: logger.Sugar()}
	return &Queue{
		db:           cfg.Database,
		clock:        clock,
		ids:          ids,
		logger:       logger,
		pollInterval: poll,
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		handlers:  make(map[string]*registration),
		schedules: make(map[string]scheduleEntry),
	}, nil
}

// Register binds a handler to a task name.
func (q *Queue) Register(name string, handler Handler, options RegisterOptions) error {
	name = strings.TrimSpace(name)
	if name == "" || handler == nil {
		return newQueueError(opRegister, "invalid_registration", fmt.Errorf("name and handler are required"))
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return newQueueError(opRegister, "already_started", errAlreadyStarted)
	}
	if _, exists := q.handlers[name]; exists {
		return newQueueError(opRegister, "duplicate", fmt.Errorf("handler for %q already registered", name))
	}
	q.handlers[name] = &registration{
		name:        name,
		handler:     handler,
		concurrency: concurrency,
		wake:        make(chan struct{}, 1),
	}
	return nil
}

// Registered reports whether a handler exists for name.
func (q *Queue) Registered(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.handlers[name]
	return ok
}

// Names lists the registered task names in sorted order.
func (q *Queue) Names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, 0, len(q.handlers))
	for name := range q.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enqueue persists a task and returns its id. With a Repeat expression it
// registers a schedule, deduplicated by name and expression, and returns the
// schedule key.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, options EnqueueOptions) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", newQueueError(opEnqueue, "missing_name", fmt.Errorf("task name is required"))
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return "", newQueueError(opEnqueue, "invalid_payload", err)
	}
	if expr := strings.TrimSpace(options.Repeat); expr != "" {
		return q.schedule(name, expr, encoded)
	}
	return q.enqueue(ctx, name, encoded)
}

func (q *Queue) enqueue(ctx context.Context, name, payload string) (string, error) {
	id, err := q.ids.NewID()
	if err != nil {
		return "", q.logError(opEnqueue, "id_generation_failed", err, zap.String("task_name", name))
	}
	task := Task{
		ID:        id,
		Name:      name,
		Payload:   payload,
		State:     StateWaiting,
		CreatedAt: q.clock().UTC(),
	}
	if err := q.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", q.logError(opEnqueue, "insert_failed", err, zap.String("task_name", name))
	}
	q.signal(name)
	return id, nil
}

func (q *Queue) schedule(name, expr, payload string) (string, error) {
	key := name + "@" + expr
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.schedules[key]; exists {
		return key, nil
	}
	entryID, err := q.cron.AddFunc(expr, func() {
		if _, err := q.enqueue(context.Background(), name, payload); err != nil {
			q.logger.Error("scheduled enqueue failed", zap.String("task_name", name), zap.Error(err))
		}
	})
	if err != nil {
		return "", newQueueError(opSchedule, "invalid_expression", err)
	}
	q.schedules[key] = scheduleEntry{name: name, expr: expr, entryID: entryID}
	q.logger.Info("task schedule registered", zap.String("task_name", name), zap.String("cron", expr))
	return key, nil
}

// Schedules lists the registered schedules with their next firing time.
func (q *Queue) Schedules() []Schedule {
	q.mu.Lock()
	defer q.mu.Unlock()
	schedules := make([]Schedule, 0, len(q.schedules))
	for key, entry := range q.schedules {
		schedules = append(schedules, Schedule{
			Key:  key,
			Name: entry.name,
			Expr: entry.expr,
			Next: q.cron.Entry(entry.entryID).Next,
		})
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].Key < schedules[j].Key })
	return schedules
}

// Start resets tasks left active by a previous process, launches the worker
// pools and the scheduler. Workers stop when ctx ends; Wait blocks until they have.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return newQueueError(opQueueNew, "already_started", errAlreadyStarted)
	}
	q.started = true
	registrations := make([]*registration, 0, len(q.handlers))
	for _, reg := range q.handlers {
		registrations = append(registrations, reg)
	}
	q.mu.Unlock()

	if err := q.RecoverStale(ctx); err != nil {
		return err
	}

	for _, reg := range registrations {
		for worker := 0; worker < reg.concurrency; worker++ {
			q.wg.Add(1)
			go q.work(ctx, reg)
		}
		q.signal(reg.name)
	}

	q.cron.Start()
	go func() {
		<-ctx.Done()
		<-q.cron.Stop().Done()
	}()

	q.logger.Info("task queue started", zap.Int("task_types", len(registrations)))
	return nil
}

// Wait blocks until every worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// RecoverStale returns active tasks to waiting.
func (q *Queue) RecoverStale(ctx context.Context) error {
	result := q.db.WithContext(ctx).Model(&Task{}).
		Where("state = ?", StateActive).
		Updates(map[string]any{"state": StateWaiting, "started_at": nil})
	if result.Error != nil {
		return q.logError(opRecover, "update_failed", result.Error)
	}
	if result.RowsAffected > 0 {
		q.logger.Warn("recovered stale tasks", zap.Int64("count", result.RowsAffected))
	}
	return nil
}

func (q *Queue) work(ctx context.Context, reg *registration) {
	defer q.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := q.ProcessNext(ctx, reg.name)
		if err != nil && ctx.Err() == nil {
			q.logger.Error("task worker iteration failed", zap.String("task_name", reg.name), zap.Error(err))
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-reg.wake:
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *Queue) signal(name string) {
	q.mu.Lock()
	reg := q.handlers[name]
	q.mu.Unlock()
	if reg == nil {
		return
	}
	select {
	case reg.wake <- struct{}{}:
	default:
	}
}

// ProcessNext claims and runs one waiting task of name. It reports whether a
// task was processed; handler failures are recorded on the task, not returned.
func (q *Queue) ProcessNext(ctx context.Context, name string) (bool, error) {
	q.mu.Lock()
	reg := q.handlers[name]
	q.mu.Unlock()
	if reg == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	task, err := q.claim(ctx, name)
	if err != nil || task == nil {
		return false, err
	}
	q.signal(name)

	runErr := q.run(ctx, reg, *task)
	return true, q.finish(context.WithoutCancel(ctx), *task, runErr)
}

// Drain processes waiting tasks of every registered name until none remain
// and returns how many ran.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		processedThisPass := 0
		for _, name := range q.Names() {
			for {
				processed, err := q.ProcessNext(ctx, name)
				if err != nil {
					return total, err
				}
				if !processed {
					break
				}
				processedThisPass++
			}
		}
		total += processedThisPass
		if processedThisPass == 0 {
			return total, nil
		}
	}
}

func (q *Queue) claim(ctx context.Context, name string) (*Task, error) {
	db := q.db.WithContext(ctx)
	for attempt := 0; attempt < claimAttempts; attempt++ {
		var candidate Task
		err := db.Where("name = ? AND state = ?", name, StateWaiting).
			Order("created_at ASC").Order("id ASC").
			Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, q.logError(opClaim, "select_failed", err, zap.String("task_name", name))
		}

		startedAt := q.clock().UTC()
		result := db.Model(&Task{}).
			Where("id = ? AND state = ?", candidate.ID, StateWaiting).
			Updates(map[string]any{
				"state":      StateActive,
				"started_at": startedAt,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if result.Error != nil {
			return nil, q.logError(opClaim, "update_failed", result.Error, zap.String("task_id", candidate.ID))
		}
		if result.RowsAffected == 1 {
			candidate.State = StateActive
			candidate.StartedAt = &startedAt
			candidate.Attempts++
			return &candidate, nil
		}
	}
	return nil, nil
}

func (q *Queue) run(ctx context.Context, reg *registration, task Task) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
			q.logger.Error("task handler panicked",
				zap.String("task_id", task.ID),
				zap.String("task_name", task.Name),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	return reg.handler(ctx, task)
}

func (q *Queue) finish(ctx context.Context, task Task, runErr error) error {
	finishedAt := q.clock().UTC()
	updates := map[string]any{
		"state":       StateCompleted,
		"finished_at": finishedAt,
		"last_error":  "",
	}
	if runErr != nil {
		updates["state"] = StateFailed
		updates["last_error"] = runErr.Error()
		q.logger.Error("task failed",
			zap.String("task_id", task.ID),
			zap.String("task_name", task.Name),
			zap.String("payload", task.Payload),
			zap.Error(runErr))
	} else {
		q.logger.Debug("task completed",
			zap.String("task_id", task.ID),
			zap.String("task_name", task.Name),
			zap.Duration("elapsed", finishedAt.Sub(*task.StartedAt)))
	}
	if err := q.db.WithContext(ctx).Model(&Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		return q.logError(opFinish, "update_failed", err, zap.String("task_id", task.ID))
	}
	return nil
}

// ListFilter narrows List.
type ListFilter struct {
	Name  string
	State State
	Limit int
}

// List returns tasks, newest first.
func (q *Queue) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := q.db.WithContext(ctx).Model(&Task{})
	if filter.Name != "" {
		query = query.Where("name = ?", filter.Name)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	var tasks []Task
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&tasks).Error; err != nil {
		return nil, q.logError(opList, "query_failed", err)
	}
	return tasks, nil
}

// Get loads one task.
func (q *Queue) Get(ctx context.Context, id string) (*Task, error) {
	var task Task
	err := q.db.WithContext(ctx).Where("id = ?", id).Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, q.logError(opList, "get_failed", err, zap.String("task_id", id))
	}
	return &task, nil
}

func (q *Queue) logError(operation, reason string, err error, fields ...zap.Field) error {
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	q.logger.Error("queue operation failed", allFields...)
	return newQueueError(operation, reason, err)
}

// cronLogger routes scheduler diagnostics through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
