package legislation

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

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const upsertBatchSize = 100

// StoreError carries a stable operation.reason code alongside the cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew                 = "legislation.store.new"
	opFindRepresentatives      = "legislation.find_representatives"
	opUpsertRepresentatives    = "legislation.upsert_representatives"
	opFindBills                = "legislation.find_bills"
	opUpsertBills              = "legislation.upsert_bills"
	opBillByCode               = "legislation.bill_by_code"
	opLinkCosponsors           = "legislation.link_cosponsors"
	opSetBillIssues            = "legislation.set_bill_issues"
	opUpsertBillVotes          = "legislation.upsert_bill_votes"
	opUpsertRepresentativeVote = "legislation.upsert_representative_votes"
	opBillVoteByID             = "legislation.bill_vote_by_id"
	opSaveFullText             = "legislation.save_full_text"
	opSaveAISummary            = "legislation.save_ai_summary"
	opUpdateSchedules          = "legislation.update_schedules"
	opListForIndex             = "legislation.list_for_index"
	opListIssues               = "legislation.list_issues"
	opMissingFullText          = "legislation.bills_missing_full_text"
	opListBillVotes            = "legislation.list_bill_votes"
)

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

var representativeSourceColumns = []string{
	"first_name", "last_name", "short_title", "title", "chamber", "party", "state",
	"district", "in_office", "website", "twitter", "phone", "next_election", "image_url",
	"total_votes", "missed_votes", "total_present", "missed_votes_pct",
	"votes_with_party_pct", "votes_against_party_pct", "updated_at",
}

var billSourceColumns = []string{
	"code", "bill_type", "number", "congress", "chamber", "title", "short_title",
	"primary_subject", "summary", "summary_short", "introduced_date",
	"last_vote", "house_passage", "senate_passage", "enacted", "vetoed",
	"latest_major_action_date", "latest_major_action", "active", "committee_codes",
	"govtrack_url", "congressdotgov_url", "updated_at",
}

var billVoteSourceColumns = []string{
	"bill_id", "chamber", "congress", "session", "roll_call", "question", "description",
	"result", "voted_at", "total_yes", "total_no", "total_not_voting", "total_present", "updated_at",
}

// StoreConfig wires the persistence dependencies.
type StoreConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store persists legislative entities.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore validates the configuration and builds a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, logger: logger}, nil
}

// DB exposes the underlying handle for collaborators sharing the connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// RepresentativesByPropublicaIDs loads the stored rows for the given external ids.
func (s *Store) RepresentativesByPropublicaIDs(ctx context.Context, propublicaIDs []string) ([]Representative, error) {
	if len(propublicaIDs) == 0 {
		return nil, nil
	}
	var representatives []Representative
	if err := s.db.WithContext(ctx).Where("propublica_id IN ?", propublicaIDs).Find(&representatives).Error; err != nil {
		return nil, s.fail(opFindRepresentatives, "query_failed", err, zap.Int("count", len(propublicaIDs)))
	}
	return representatives, nil
}

// RepresentativeIDs resolves external ids to local ids, omitting unknown ids.
func (s *Store) RepresentativeIDs(ctx context.Context, propublicaIDs []string) (map[string]uint, error) {
	representatives, err := s.RepresentativesByPropublicaIDs(ctx, propublicaIDs)
	if err != nil {
		return nil, err
	}
	resolved := make(map[string]uint, len(representatives))
	for _, representative := range representatives {
		resolved[representative.PropublicaID] = representative.ID
	}
	return resolved, nil
}

// UpsertRepresentatives creates or updates representatives keyed by external id in one transaction.
func (s *Store) UpsertRepresentatives(ctx context.Context, representatives []Representative) error {
	if len(representatives) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "propublica_id"}},
			DoUpdates: clause.AssignmentColumns(representativeSourceColumns),
		}).CreateInBatches(&representatives, upsertBatchSize).Error
	})
	if err != nil {
		return s.fail(opUpsertRepresentatives, "save_failed", err, zap.Int("count", len(representatives)))
	}
	return nil
}

// ListRepresentatives returns every stored representative ordered by id.
func (s *Store) ListRepresentatives(ctx context.Context) ([]Representative, error) {
	var representatives []Representative
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&representatives).Error; err != nil {
		return nil, s.fail(opFindRepresentatives, "list_failed", err)
	}
	return representatives, nil
}

// BillsByPropublicaIDs loads the stored rows for the given external bill ids.
func (s *Store) BillsByPropublicaIDs(ctx context.Context, propublicaIDs []string) ([]Bill, error) {
	if len(propublicaIDs) == 0 {
		return nil, nil
	}
	var bills []Bill
	if err := s.db.WithContext(ctx).Where("propublica_id IN ?", propublicaIDs).Find(&bills).Error; err != nil {
		return nil, s.fail(opFindBills, "query_failed", err, zap.Int("count", len(propublicaIDs)))
	}
	return bills, nil
}

// BillsWithRelations loads bills by external id with the sponsor, cosponsor
// and issue links used for interest resolution.
func (s *Store) BillsWithRelations(ctx context.Context, propublicaIDs []string) ([]Bill, error) {
	if len(propublicaIDs) == 0 {
		return nil, nil
	}
	var bills []Bill
	err := s.db.WithContext(ctx).
		Preload("Cosponsors").
		Preload("SecondaryIssues").
		Where("propublica_id IN ?", propublicaIDs).
		Order("id ASC").
		Find(&bills).Error
	if err != nil {
		return nil, s.fail(opFindBills, "relations_query_failed", err, zap.Int("count", len(propublicaIDs)))
	}
	return bills, nil
}

// UpsertBills creates or updates bills keyed by external id. Association fields
// are written by the dedicated link operations. A nil SponsorID keeps the
// sponsor already stored for the bill.
func (s *Store) UpsertBills(ctx context.Context, bills []Bill) error {
	if len(bills) == 0 {
		return nil
	}
	assignments := clause.AssignmentColumns(billSourceColumns)
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "sponsor_id"},
		Value:  gorm.Expr("COALESCE(excluded.sponsor_id, " + Bill{}.TableName() + ".sponsor_id)"),
	})
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "propublica_id"}},
			DoUpdates: clause.Set(assignments),
		}).CreateInBatches(&bills, upsertBatchSize).Error
	})
	if err != nil {
		return s.fail(opUpsertBills, "save_failed", err, zap.Int("count", len(bills)))
	}
	return nil
}

// BillByCode returns the bill with the given code, preferring the latest congress.
func (s *Store) BillByCode(ctx context.Context, code string) (*Bill, error) {
	return s.billByCode(ctx, code, 0)
}

// BillByCodeInCongress returns the bill with the given code within one congress.
func (s *Store) BillByCodeInCongress(ctx context.Context, code string, congress int) (*Bill, error) {
	return s.billByCode(ctx, code, congress)
}

func (s *Store) billByCode(ctx context.Context, code string, congress int) (*Bill, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	query := s.db.WithContext(ctx).
		Preload("Sponsor").
		Preload("Cosponsors").
		Preload("PrimaryIssue").
		Preload("SecondaryIssues").
		Preload("FullText").
		Where("code = ?", code)
	if congress > 0 {
		query = query.Where("congress = ?", congress)
	}
	var bill Bill
	err := query.Order("congress DESC").Take(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBillNotFound
	}
	if err != nil {
		return nil, s.fail(opBillByCode, "query_failed", err, zap.String("code", code))
	}
	return &bill, nil
}

// LinkCosponsors adds cosponsor links, ignoring links that already exist.
func (s *Store) LinkCosponsors(ctx context.Context, billID uint, representativeIDs []uint) error {
	if len(representativeIDs) == 0 {
		return nil
	}
	rows := make([]BillCosponsor, 0, len(representativeIDs))
	for _, representativeID := range representativeIDs {
		rows = append(rows, BillCosponsor{BillID: billID, RepresentativeID: representativeID})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return s.fail(opLinkCosponsors, "save_failed", err, zap.Uint("bill_id", billID))
	}
	return nil
}

// ReplaceBillSubjects overwrites the subject list of a bill.
func (s *Store) ReplaceBillSubjects(ctx context.Context, billID uint, subjects []string) error {
	if subjects == nil {
		subjects = []string{}
	}
	err := s.db.WithContext(ctx).Model(&Bill{ID: billID}).Select("Subjects").Updates(&Bill{Subjects: subjects}).Error
	if err != nil {
		return s.fail(opSetBillIssues, "subjects_save_failed", err, zap.Uint("bill_id", billID))
	}
	return nil
}

// SetBillIssues replaces the primary and secondary issue links of a bill.
func (s *Store) SetBillIssues(ctx context.Context, billID uint, primaryIssueID *uint, secondaryIssueIDs []uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Bill{}).Where("id = ?", billID).Update("primary_issue_id", primaryIssueID).Error; err != nil {
			return err
		}
		if err := tx.Where("bill_id = ?", billID).Delete(&BillSecondaryIssue{}).Error; err != nil {
			return err
		}
		if len(secondaryIssueIDs) == 0 {
			return nil
		}
		rows := make([]BillSecondaryIssue, 0, len(secondaryIssueIDs))
		for _, issueID := range secondaryIssueIDs {
			rows = append(rows, BillSecondaryIssue{BillID: billID, IssueID: issueID})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	if err != nil {
		return s.fail(opSetBillIssues, "save_failed", err, zap.Uint("bill_id", billID))
	}
	return nil
}

// ListIssues returns the issue taxonomy ordered by id.
func (s *Store) ListIssues(ctx context.Context) ([]Issue, error) {
	var issues []Issue
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&issues).Error; err != nil {
		return nil, s.fail(opListIssues, "query_failed", err)
	}
	return issues, nil
}

// UpsertBillVotes creates or updates roll-call rows keyed by API URL and
// returns the stored rows with their local ids.
func (s *Store) UpsertBillVotes(ctx context.Context, votes []BillVote) ([]BillVote, error) {
	if len(votes) == 0 {
		return nil, nil
	}
	urls := make([]string, 0, len(votes))
	for _, vote := range votes {
		urls = append(urls, vote.APIURL)
	}
	var stored []BillVote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "api_url"}},
			DoUpdates: clause.AssignmentColumns(billVoteSourceColumns),
		}).Create(&votes).Error; err != nil {
			return err
		}
		return tx.Where("api_url IN ?", urls).Order("voted_at ASC").Find(&stored).Error
	})
	if err != nil {
		return nil, s.fail(opUpsertBillVotes, "save_failed", err, zap.Int("count", len(votes)))
	}
	return stored, nil
}

// BillVotesByBill lists every roll call recorded for a bill, oldest first.
func (s *Store) BillVotesByBill(ctx context.Context, billID uint) ([]BillVote, error) {
	var votes []BillVote
	err := s.db.WithContext(ctx).Where("bill_id = ?", billID).Order("voted_at ASC").Order("id ASC").Find(&votes).Error
	if err != nil {
		return nil, s.fail(opListBillVotes, "query_failed", err, zap.Uint("bill_id", billID))
	}
	return votes, nil
}

// BillVoteByID loads a single roll-call row.
func (s *Store) BillVoteByID(ctx context.Context, id uint) (*BillVote, error) {
	var vote BillVote
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBillVoteNotFound
	}
	if err != nil {
		return nil, s.fail(opBillVoteByID, "query_failed", err, zap.Uint("bill_vote_id", id))
	}
	return &vote, nil
}

// UpsertRepresentativeVotes writes positions keyed by (representative, roll call, bill).
func (s *Store) UpsertRepresentativeVotes(ctx context.Context, votes []RepresentativeVote) error {
	if len(votes) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "representative_id"},
				{Name: "bill_vote_id"},
				{Name: "bill_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"position", "voted_at", "updated_at"}),
		}).CreateInBatches(&votes, upsertBatchSize).Error
	})
	if err != nil {
		return s.fail(opUpsertRepresentativeVote, "save_failed", err, zap.Int("count", len(votes)))
	}
	return nil
}

// SaveFullText stores the flattened text and stamps the bill's full-text sync time.
func (s *Store) SaveFullText(ctx context.Context, billID uint, text, sourceURL string, syncedAt time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := BillFullText{BillID: billID, Text: text, SourceURL: sourceURL}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bill_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "source_url", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return err
		}
		return tx.Model(&Bill{}).Where("id = ?", billID).Update("job_last_full_text_sync", syncedAt.UTC()).Error
	})
	if err != nil {
		return s.fail(opSaveFullText, "save_failed", err, zap.Uint("bill_id", billID))
	}
	return nil
}

// TouchFullTextSync stamps the full-text sync time without rewriting the text.
func (s *Store) TouchFullTextSync(ctx context.Context, billID uint, syncedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&Bill{}).Where("id = ?", billID).Update("job_last_full_text_sync", syncedAt.UTC()).Error
	if err != nil {
		return s.fail(opSaveFullText, "touch_failed", err, zap.Uint("bill_id", billID))
	}
	return nil
}

// SaveAISummary stores the generated summary and stamps the summary sync time.
func (s *Store) SaveAISummary(ctx context.Context, billID uint, summary string, syncedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&Bill{}).Where("id = ?", billID).Updates(map[string]any{
		"ai_summary":            summary,
		"job_last_summary_sync": syncedAt.UTC(),
	}).Error
	if err != nil {
		return s.fail(opSaveAISummary, "save_failed", err, zap.Uint("bill_id", billID))
	}
	return nil
}

// UpdateBillSchedules applies floor schedules to bills already stored locally
// and reports how many bills were updated.
func (s *Store) UpdateBillSchedules(ctx context.Context, schedules []BillSchedule) (int, error) {
	if len(schedules) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(schedules))
	for _, schedule := range schedules {
		ids = append(ids, schedule.PropublicaID)
	}
	updated := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []Bill
		if err := tx.Select("id", "propublica_id").Where("propublica_id IN ?", ids).Find(&existing).Error; err != nil {
			return err
		}
		local := make(map[string]uint, len(existing))
		for _, bill := range existing {
			local[bill.PropublicaID] = bill.ID
		}
		for _, schedule := range schedules {
			billID, ok := local[schedule.PropublicaID]
			if !ok {
				continue
			}
			if err := tx.Model(&Bill{}).Where("id = ?", billID).Updates(map[string]any{
				"scheduled_at":       schedule.ScheduledAt,
				"legislative_day":    schedule.LegislativeDay,
				"schedule_range":     schedule.ScheduleRange,
				"next_consideration": schedule.NextConsideration,
			}).Error; err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, s.fail(opUpdateSchedules, "save_failed", err, zap.Int("count", len(schedules)))
	}
	return updated, nil
}

// BillsMissingFullText lists bills of the given types that have no stored text.
func (s *Store) BillsMissingFullText(ctx context.Context, billTypes []string) ([]Bill, error) {
	var bills []Bill
	err := s.db.WithContext(ctx).
		Joins("LEFT JOIN bill_full_texts ON bill_full_texts.bill_id = bills.id").
		Where("bill_full_texts.id IS NULL").
		Where("bills.bill_type IN ?", billTypes).
		Order("bills.id ASC").
		Find(&bills).Error
	if err != nil {
		return nil, s.fail(opMissingFullText, "query_failed", err)
	}
	return bills, nil
}

// ListBillsForIndex loads every bill with the relations the search documents denormalize.
func (s *Store) ListBillsForIndex(ctx context.Context) ([]Bill, error) {
	var bills []Bill
	err := s.db.WithContext(ctx).
		Preload("Sponsor").
		Preload("PrimaryIssue").
		Preload("SecondaryIssues").
		Order("id ASC").
		Find(&bills).Error
	if err != nil {
		return nil, s.fail(opListForIndex, "query_failed", err)
	}
	return bills, nil
}

func (s *Store) fail(operation, reason string, err error, fields ...zap.Field) error {
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("legislation store operation failed", allFields...)
	return newStoreError(operation, reason, err)
}
