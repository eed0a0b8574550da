// Package server exposes the operational HTTP surface of the sync worker.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/notify"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	operatorContextKey       = "breakdown_operator"
	eventNotification        = "notification"
	eventHeartbeat           = "heartbeat"
	defaultHeartbeatInterval = 25 * time.Second
	maxPayloadBytes          = 64 << 10
)

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingTaskQueue      = errors.New("task queue dependency required")
	errMissingDispatcher     = errors.New("notification dispatcher dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator resolves a bearer token to its operator subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// TaskQueue is the queue surface used by the task endpoints.
type TaskQueue interface {
	Registered(name string) bool
	Enqueue(ctx context.Context, name string, payload any, options queue.EnqueueOptions) (string, error)
	List(ctx context.Context, filter queue.ListFilter) ([]queue.Task, error)
	Get(ctx context.Context, id string) (*queue.Task, error)
	Schedules() []queue.Schedule
}

// Dependencies wires the router.
type Dependencies struct {
	Tokens     TokenValidator
	Queue      TaskQueue
	Dispatcher *notify.Dispatcher
	// HealthCheck, when set, backs GET /healthz.
	HealthCheck       func(ctx context.Context) error
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Queue == nil {
		return nil, errMissingTaskQueue
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		tokens:     deps.Tokens,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		health:     deps.HealthCheck,
		heartbeat:  heartbeat,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/tasks", handler.handleListTasks)
	protected.GET("/tasks/:id", handler.handleGetTask)
	protected.POST("/tasks/:name", handler.handleEnqueueTask)
	protected.GET("/schedules", handler.handleSchedules)
	protected.GET("/notifications/stream", handler.handleNotificationStream)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	tokens     TokenValidator
	queue      TaskQueue
	dispatcher *notify.Dispatcher
	health     func(ctx context.Context) error
	heartbeat  time.Duration
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type taskListResponse struct {
	Tasks []queue.Task `json:"tasks"`
}

func (h *httpHandler) handleListTasks(c *gin.Context) {
	filter := queue.ListFilter{Name: strings.TrimSpace(c.Query("name"))}
	if raw := strings.TrimSpace(c.Query("state")); raw != "" {
		state := queue.State(strings.ToLower(raw))
		if !state.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state"})
			return
		}
		filter.State = state
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		filter.Limit = limit
	}

	tasks, err := h.queue.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if tasks == nil {
		tasks = []queue.Task{}
	}
	c.JSON(http.StatusOK, taskListResponse{Tasks: tasks})
}

func (h *httpHandler) handleGetTask(c *gin.Context) {
	task, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load task", zap.String("task_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, task)
}

type enqueueResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *httpHandler) handleEnqueueTask(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if !h.queue.Registered(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_task"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes+1))
	if err != nil || len(body) > maxPayloadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	payload := json.RawMessage(strings.TrimSpace(string(body)))
	if len(payload) > 0 && !json.Valid(payload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	id, err := h.queue.Enqueue(c.Request.Context(), name, payload, queue.EnqueueOptions{})
	if err != nil {
		h.logger.Error("failed to enqueue task", zap.String("task_name", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}
	h.logger.Info("task enqueued by operator",
		zap.String("task_id", id),
		zap.String("task_name", name),
		zap.String("operator", c.GetString(operatorContextKey)))
	c.JSON(http.StatusAccepted, enqueueResponse{ID: id, Name: name})
}

type scheduleListResponse struct {
	Schedules []queue.Schedule `json:"schedules"`
}

func (h *httpHandler) handleSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, scheduleListResponse{Schedules: h.queue.Schedules()})
}

func (h *httpHandler) handleNotificationStream(c *gin.Context) {
	userID := notify.AllUsers
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
			return
		}
		userID = uint(parsed)
	}

	ctx := c.Request.Context()
	stream, cancel := h.dispatcher.Subscribe(ctx, userID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(eventNotification, message)
			c.Writer.Flush()
		case now := <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"timestamp": now.UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		}
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(operatorContextKey, subject)
	c.Next()
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter that EventSource clients must use.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("access_token"))
}
