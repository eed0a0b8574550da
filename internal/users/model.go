package users

import (
	"strings"
	"time"
)

// User is an account that receives notifications about followed legislation.
type User struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Email       string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	DisplayName string    `gorm:"column:display_name;size:320;not null;default:''"`
	State       string    `gorm:"column:state;size:8;not null;default:''"`
	District    string    `gorm:"column:district;size:16;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// UserRepresentative links a user to a representative of their district.
type UserRepresentative struct {
	UserID           uint `gorm:"column:user_id;primaryKey"`
	RepresentativeID uint `gorm:"column:representative_id;primaryKey;index"`
}

func (UserRepresentative) TableName() string {
	return "user_representatives"
}

// UserFollowedRepresentative links a user to a representative they follow.
type UserFollowedRepresentative struct {
	UserID           uint `gorm:"column:user_id;primaryKey"`
	RepresentativeID uint `gorm:"column:representative_id;primaryKey;index"`
}

func (UserFollowedRepresentative) TableName() string {
	return "user_followed_representatives"
}

// UserFollowedBill links a user to a bill they follow.
type UserFollowedBill struct {
	UserID uint `gorm:"column:user_id;primaryKey"`
	BillID uint `gorm:"column:bill_id;primaryKey;index"`
}

func (UserFollowedBill) TableName() string {
	return "user_followed_bills"
}

// UserFollowedIssue links a user to an issue they follow.
type UserFollowedIssue struct {
	UserID  uint `gorm:"column:user_id;primaryKey"`
	IssueID uint `gorm:"column:issue_id;primaryKey;index"`
}

func (UserFollowedIssue) TableName() string {
	return "user_followed_issues"
}

// Models lists every table owned by this package.
func Models() []any {
	return []any{
		&User{},
		&UserRepresentative{},
		&UserFollowedRepresentative{},
		&UserFollowedBill{},
		&UserFollowedIssue{},
	}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
