package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const (
	defaultTaskPollInterval = 100 * time.Millisecond
	codeIndexNotFound       = "index_not_found"
)

var (
	// ErrRequestFailed is returned when the search engine rejects a request.
	ErrRequestFailed = errors.New("search: request failed")
	// ErrTaskFailed is returned when an enqueued indexing task does not succeed.
	ErrTaskFailed = errors.New("search: task failed")
)

// Indexer is the subset of the search engine the rebuild uses.
type Indexer interface {
	DeleteIndex(ctx context.Context, uid string) error
	CreateIndex(ctx context.Context, uid, primaryKey string) error
	AddDocuments(ctx context.Context, uid string, documents any) error
}

// Config wires the Meilisearch client.
type Config struct {
	URL              string
	APIKey           string
	TaskPollInterval time.Duration
	Logger           *zap.Logger
}

// Client drives Meilisearch and blocks until every write task settles.
type Client struct {
	service      meilisearch.ServiceManager
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewClient validates the configuration and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("search: url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("search: invalid url: %w", err)
	}
	pollInterval := cfg.TaskPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultTaskPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var options []meilisearch.Option
	if cfg.APIKey != "" {
		options = append(options, meilisearch.WithAPIKey(cfg.APIKey))
	}
	return &Client{
		service:      meilisearch.New(baseURL, options...),
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

// DeleteIndex drops an index. A missing index is not an error.
func (c *Client) DeleteIndex(ctx context.Context, uid string) error {
	info, err := c.service.DeleteIndexWithContext(ctx, uid)
	if err != nil {
		return fmt.Errorf("%w: delete index %s: %w", ErrRequestFailed, uid, err)
	}
	task, err := c.wait(ctx, info)
	if err != nil {
		return err
	}
	if task.Status == meilisearch.TaskStatusFailed && task.Error.Code == codeIndexNotFound {
		return nil
	}
	return c.settled("delete index "+uid, info, task)
}

// CreateIndex creates an index with the given primary key.
func (c *Client) CreateIndex(ctx context.Context, uid, primaryKey string) error {
	info, err := c.service.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{Uid: uid, PrimaryKey: primaryKey})
	if err != nil {
		return fmt.Errorf("%w: create index %s: %w", ErrRequestFailed, uid, err)
	}
	task, err := c.wait(ctx, info)
	if err != nil {
		return err
	}
	return c.settled("create index "+uid, info, task)
}

// AddDocuments adds or replaces documents in an index.
func (c *Client) AddDocuments(ctx context.Context, uid string, documents any) error {
	info, err := c.service.Index(uid).AddDocumentsWithContext(ctx, documents)
	if err != nil {
		return fmt.Errorf("%w: add documents to %s: %w", ErrRequestFailed, uid, err)
	}
	task, err := c.wait(ctx, info)
	if err != nil {
		return err
	}
	return c.settled("add documents to "+uid, info, task)
}

func (c *Client) wait(ctx context.Context, info *meilisearch.TaskInfo) (*meilisearch.Task, error) {
	task, err := c.service.WaitForTaskWithContext(ctx, info.TaskUID, c.pollInterval)
	if err != nil {
		return nil, fmt.Errorf("search: wait for task %d: %w", info.TaskUID, err)
	}
	return task, nil
}

func (c *Client) settled(operation string, info *meilisearch.TaskInfo, task *meilisearch.Task) error {
	if task.Status == meilisearch.TaskStatusSucceeded {
		return nil
	}
	c.logger.Warn("search task did not succeed",
		zap.String("operation", operation),
		zap.Int64("task_uid", info.TaskUID),
		zap.String("status", string(task.Status)),
		zap.String("code", task.Error.Code),
		zap.String("message", task.Error.Message))
	return fmt.Errorf("%w: %s: task %d %s: %s", ErrTaskFailed, operation, info.TaskUID, task.Status, task.Error.Message)
}
