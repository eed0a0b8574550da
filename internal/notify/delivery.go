package notify

import "time"

// Delivery records one deliver-attempted notification, keyed by
// (user_id, type, run_id) so a redelivered task sends at most once.
type Delivery struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:ux_delivery_user_type_run,priority:1"`
	Type      string    `gorm:"column:type;size:64;not null;uniqueIndex:ux_delivery_user_type_run,priority:2"`
	RunID     string    `gorm:"column:run_id;size:64;not null;uniqueIndex:ux_delivery_user_type_run,priority:3"`
	BillIDs   []uint    `gorm:"column:bill_ids;type:text;serializer:json"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (Delivery) TableName() string {
	return "notification_deliveries"
}

// Models lists every table owned by this package.
func Models() []any {
	return []any{&Delivery{}}
}
