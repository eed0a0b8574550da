package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("notify: database handle is required")

// Data is the payload of one notification.
type Data struct {
	BillIDs []uint
	// RunID identifies the sync run that triggered the notification.
	RunID string
}

// SenderConfig wires the sender.
type SenderConfig struct {
	Database   *gorm.DB
	Dispatcher *Dispatcher
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Sender records and dispatches notifications. Dispatch is deliver-attempted:
// it logs and publishes to in-process subscribers.
type Sender struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	clock      func() time.Time
	logger     *zap.Logger
}

// NewSender validates the configuration and builds a Sender.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{db: cfg.Database, dispatcher: dispatcher, clock: clock, logger: logger}, nil
}

// Dispatcher exposes the subscriber registry.
func (s *Sender) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Send delivers a notification once per (user, type, run). It reports false
// when the ledger already holds the delivery.
func (s *Sender) Send(ctx context.Context, userID uint, notificationType Type, data Data) (bool, error) {
	if userID == 0 {
		return false, fmt.Errorf("notify: user id is required")
	}
	if notificationType >= typeCount {
		return false, fmt.Errorf("notify: unknown notification type %d", uint8(notificationType))
	}
	runID := strings.TrimSpace(data.RunID)
	if runID == "" {
		return false, fmt.Errorf("notify: run id is required")
	}

	record := Delivery{
		UserID:  userID,
		Type:    notificationType.String(),
		RunID:   runID,
		BillIDs: data.BillIDs,
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		s.logger.Error("notification ledger write failed",
			zap.Uint("user_id", userID),
			zap.String("type", notificationType.String()),
			zap.String("run_id", runID),
			zap.Error(result.Error))
		return false, fmt.Errorf("notify: record delivery: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Info("notification already delivered",
			zap.Uint("user_id", userID),
			zap.String("type", notificationType.String()),
			zap.String("run_id", runID))
		return false, nil
	}

	s.logger.Info("notification sent",
		zap.Uint("user_id", userID),
		zap.String("type", notificationType.String()),
		zap.String("title", notificationType.Title()),
		zap.Uints("bill_ids", data.BillIDs),
		zap.String("run_id", runID))

	s.dispatcher.Publish(Message{
		UserID:    userID,
		Type:      notificationType,
		BillIDs:   data.BillIDs,
		RunID:     runID,
		Timestamp: s.clock().UTC(),
	})
	return true, nil
}
