package users

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidUser indicates the user could not be created from the supplied fields.
var ErrInvalidUser = errors.New("users: invalid user")

// ServiceConfig describes the dependencies required for user relations.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service manages users and their follow relations.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// CreateUser stores a new user.
func (s *Service) CreateUser(ctx context.Context, user User) (User, error) {
	user.Email = normalize(user.Email)
	user.DisplayName = normalize(user.DisplayName)
	if user.Email == "" {
		return User{}, ErrInvalidUser
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, fmt.Errorf("users: create user: %w", err)
	}
	return user, nil
}

// AssignRepresentatives records the representatives of a user's district.
func (s *Service) AssignRepresentatives(ctx context.Context, userID uint, representativeIDs ...uint) error {
	rows := make([]UserRepresentative, 0, len(representativeIDs))
	for _, representativeID := range representativeIDs {
		rows = append(rows, UserRepresentative{UserID: userID, RepresentativeID: representativeID})
	}
	return s.link(ctx, &rows, len(rows))
}

// FollowRepresentative adds a followed representative.
func (s *Service) FollowRepresentative(ctx context.Context, userID, representativeID uint) error {
	return s.link(ctx, &UserFollowedRepresentative{UserID: userID, RepresentativeID: representativeID}, 1)
}

// FollowBill adds a followed bill.
func (s *Service) FollowBill(ctx context.Context, userID, billID uint) error {
	return s.link(ctx, &UserFollowedBill{UserID: userID, BillID: billID}, 1)
}

// FollowIssue adds a followed issue.
func (s *Service) FollowIssue(ctx context.Context, userID, issueID uint) error {
	return s.link(ctx, &UserFollowedIssue{UserID: userID, IssueID: issueID}, 1)
}

func (s *Service) link(ctx context.Context, rows any, count int) error {
	if count == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rows).Error; err != nil {
		return fmt.Errorf("users: link: %w", err)
	}
	return nil
}

// Interest names the entities whose followers care about a bill.
type Interest struct {
	BillID            uint
	RepresentativeIDs []uint
	IssueIDs          []uint
}

// BillInterest collects the sponsor, cosponsors and issues of a loaded bill.
func BillInterest(bill legislation.Bill) Interest {
	interest := Interest{BillID: bill.ID}
	if bill.SponsorID != nil {
		interest.RepresentativeIDs = append(interest.RepresentativeIDs, *bill.SponsorID)
	}
	for _, cosponsor := range bill.Cosponsors {
		interest.RepresentativeIDs = append(interest.RepresentativeIDs, cosponsor.ID)
	}
	if bill.PrimaryIssueID != nil {
		interest.IssueIDs = append(interest.IssueIDs, *bill.PrimaryIssueID)
	}
	for _, issue := range bill.SecondaryIssues {
		interest.IssueIDs = append(interest.IssueIDs, issue.ID)
	}
	return interest
}

// InterestedUsers returns the distinct users who either have a sponsor or
// cosponsor as their representative, follow one of them, follow one of the
// bill's issues, or follow the bill itself. The result is sorted ascending.
func (s *Service) InterestedUsers(ctx context.Context, interest Interest) ([]uint, error) {
	db := s.db.WithContext(ctx)
	seen := make(map[uint]struct{})
	collect := func(model any, column string, values any) error {
		var userIDs []uint
		if err := db.Model(model).Where(column+" IN ?", values).Distinct().Pluck("user_id", &userIDs).Error; err != nil {
			return err
		}
		for _, userID := range userIDs {
			seen[userID] = struct{}{}
		}
		return nil
	}

	if len(interest.RepresentativeIDs) > 0 {
		if err := collect(&UserRepresentative{}, "representative_id", interest.RepresentativeIDs); err != nil {
			return nil, s.fail("representatives", err, interest.BillID)
		}
		if err := collect(&UserFollowedRepresentative{}, "representative_id", interest.RepresentativeIDs); err != nil {
			return nil, s.fail("followed_representatives", err, interest.BillID)
		}
	}
	if len(interest.IssueIDs) > 0 {
		if err := collect(&UserFollowedIssue{}, "issue_id", interest.IssueIDs); err != nil {
			return nil, s.fail("followed_issues", err, interest.BillID)
		}
	}
	if interest.BillID != 0 {
		if err := collect(&UserFollowedBill{}, "bill_id", []uint{interest.BillID}); err != nil {
			return nil, s.fail("followed_bills", err, interest.BillID)
		}
	}

	userIDs := make([]uint, 0, len(seen))
	for userID := range seen {
		userIDs = append(userIDs, userID)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	return userIDs, nil
}

func (s *Service) fail(relation string, err error, billID uint) error {
	s.logger.Error("interested user lookup failed",
		zap.String("relation", relation),
		zap.Uint("bill_id", billID),
		zap.Error(err))
	return fmt.Errorf("users: interested users via %s: %w", relation, err)
}
