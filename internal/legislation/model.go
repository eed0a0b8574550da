package legislation

import (
	"errors"
	"strings"
	"time"
)

// Chamber identifies a house of Congress.
type Chamber string

const (
	// ChamberHouse is the House of Representatives.
	ChamberHouse Chamber = "house"
	// ChamberSenate is the Senate.
	ChamberSenate Chamber = "senate"
)

// String returns the lowercase chamber name used by the source APIs.
func (c Chamber) String() string {
	return string(c)
}

var (
	// ErrBillNotFound indicates that no bill matches the requested key.
	ErrBillNotFound = errors.New("legislation: bill not found")
	// ErrBillVoteNotFound indicates that no roll-call vote matches the requested key.
	ErrBillVoteNotFound = errors.New("legislation: bill vote not found")
)

// Representative is a member of Congress keyed by its ProPublica id.
type Representative struct {
	ID                   uint      `gorm:"column:id;primaryKey;autoIncrement"`
	PropublicaID         string    `gorm:"column:propublica_id;size:32;not null;uniqueIndex"`
	FirstName            string    `gorm:"column:first_name;size:120;not null;default:''"`
	LastName             string    `gorm:"column:last_name;size:120;not null;default:''"`
	ShortTitle           string    `gorm:"column:short_title;size:32;not null;default:''"`
	Title                string    `gorm:"column:title;size:120;not null;default:''"`
	Chamber              Chamber   `gorm:"column:chamber;size:16;not null;index"`
	Party                string    `gorm:"column:party;size:8;not null;default:''"`
	State                string    `gorm:"column:state;size:8;not null;default:'';index"`
	District             string    `gorm:"column:district;size:16;not null;default:''"`
	InOffice             bool      `gorm:"column:in_office;not null"`
	Website              string    `gorm:"column:website;size:512;not null;default:''"`
	Twitter              string    `gorm:"column:twitter;size:120;not null;default:''"`
	Phone                string    `gorm:"column:phone;size:64;not null;default:''"`
	NextElection         string    `gorm:"column:next_election;size:8;not null;default:''"`
	ImageURL             string    `gorm:"column:image_url;size:512;not null;default:''"`
	TotalVotes           int       `gorm:"column:total_votes;not null;default:0"`
	MissedVotes          int       `gorm:"column:missed_votes;not null;default:0"`
	TotalPresent         int       `gorm:"column:total_present;not null;default:0"`
	MissedVotesPct       float64   `gorm:"column:missed_votes_pct;not null;default:0"`
	VotesWithPartyPct    float64   `gorm:"column:votes_with_party_pct;not null;default:0"`
	VotesAgainstPartyPct float64   `gorm:"column:votes_against_party_pct;not null;default:0"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Representative) TableName() string {
	return "representatives"
}

// FullName joins the first and last name.
func (r Representative) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Issue is a curated taxonomy node matched against bill subjects.
type Issue struct {
	ID       uint     `gorm:"column:id;primaryKey;autoIncrement"`
	Slug     string   `gorm:"column:slug;size:120;not null;uniqueIndex"`
	Name     string   `gorm:"column:name;size:190;not null"`
	Subjects []string `gorm:"column:subjects;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (Issue) TableName() string {
	return "issues"
}

// BillJobData records when the per-bill background jobs last wrote.
type BillJobData struct {
	LastFullTextSync *time.Time
	LastSummarySync  *time.Time
}

// Bill is a piece of legislation keyed by its ProPublica bill id.
type Bill struct {
	ID                    uint             `gorm:"column:id;primaryKey;autoIncrement"`
	PropublicaID          string           `gorm:"column:propublica_id;size:64;not null;uniqueIndex"`
	Code                  string           `gorm:"column:code;size:64;not null;index"`
	BillType              string           `gorm:"column:bill_type;size:16;not null;default:''"`
	Number                string           `gorm:"column:number;size:64;not null;default:''"`
	Congress              int              `gorm:"column:congress;not null;default:0"`
	Chamber               Chamber          `gorm:"column:chamber;size:16;not null;default:''"`
	Title                 string           `gorm:"column:title;type:text;not null;default:''"`
	ShortTitle            string           `gorm:"column:short_title;type:text;not null;default:''"`
	PrimarySubject        string           `gorm:"column:primary_subject;size:190;not null;default:''"`
	Summary               string           `gorm:"column:summary;type:text;not null;default:''"`
	SummaryShort          string           `gorm:"column:summary_short;type:text;not null;default:''"`
	SponsorID             *uint            `gorm:"column:sponsor_id;index"`
	Sponsor               *Representative  `gorm:"foreignKey:SponsorID"`
	Cosponsors            []Representative `gorm:"many2many:bill_cosponsors"`
	Subjects              []string         `gorm:"column:subjects;type:text;serializer:json"`
	PrimaryIssueID        *uint            `gorm:"column:primary_issue_id;index"`
	PrimaryIssue          *Issue           `gorm:"foreignKey:PrimaryIssueID"`
	SecondaryIssues       []Issue          `gorm:"many2many:bill_secondary_issues"`
	IntroducedDate        *time.Time       `gorm:"column:introduced_date"`
	LastVote              *time.Time       `gorm:"column:last_vote"`
	HousePassage          *time.Time       `gorm:"column:house_passage"`
	SenatePassage         *time.Time       `gorm:"column:senate_passage"`
	Enacted               *time.Time       `gorm:"column:enacted"`
	Vetoed                *time.Time       `gorm:"column:vetoed"`
	LatestMajorActionDate *time.Time       `gorm:"column:latest_major_action_date"`
	LatestMajorAction     string           `gorm:"column:latest_major_action;type:text;not null;default:''"`
	Active                bool             `gorm:"column:active;not null;default:false"`
	CommitteeCodes        []string         `gorm:"column:committee_codes;type:text;serializer:json"`
	GovtrackURL           string           `gorm:"column:govtrack_url;size:512;not null;default:''"`
	CongressdotgovURL     string           `gorm:"column:congressdotgov_url;size:512;not null;default:''"`
	ScheduledAt           *time.Time       `gorm:"column:scheduled_at"`
	LegislativeDay        *time.Time       `gorm:"column:legislative_day"`
	ScheduleRange         string           `gorm:"column:schedule_range;size:32;not null;default:''"`
	NextConsideration     string           `gorm:"column:next_consideration;type:text;not null;default:''"`
	FullText              *BillFullText    `gorm:"foreignKey:BillID"`
	AISummary             string           `gorm:"column:ai_summary;type:text;not null;default:''"`
	JobData               BillJobData      `gorm:"embedded;embeddedPrefix:job_"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Bill) TableName() string {
	return "bills"
}

// BillCosponsor is the join row linking a bill to a cosponsoring representative.
type BillCosponsor struct {
	BillID           uint `gorm:"column:bill_id;primaryKey"`
	RepresentativeID uint `gorm:"column:representative_id;primaryKey"`
}

// TableName provides the explicit table binding for GORM.
func (BillCosponsor) TableName() string {
	return "bill_cosponsors"
}

// BillSecondaryIssue is the join row linking a bill to a secondary issue.
type BillSecondaryIssue struct {
	BillID  uint `gorm:"column:bill_id;primaryKey"`
	IssueID uint `gorm:"column:issue_id;primaryKey"`
}

// TableName provides the explicit table binding for GORM.
func (BillSecondaryIssue) TableName() string {
	return "bill_secondary_issues"
}

// BillFullText stores the flattened legislative text of a bill.
type BillFullText struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	BillID    uint      `gorm:"column:bill_id;not null;uniqueIndex"`
	Text      string    `gorm:"column:text;type:text;not null"`
	SourceURL string    `gorm:"column:source_url;size:512;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (BillFullText) TableName() string {
	return "bill_full_texts"
}

// BillVote is a single roll-call event on a bill, keyed by its source API URL.
type BillVote struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"`
	APIURL         string    `gorm:"column:api_url;size:512;not null;uniqueIndex"`
	BillID         uint      `gorm:"column:bill_id;not null;index"`
	Chamber        Chamber   `gorm:"column:chamber;size:16;not null"`
	Congress       int       `gorm:"column:congress;not null;default:0"`
	Session        int       `gorm:"column:session;not null;default:0"`
	RollCall       int       `gorm:"column:roll_call;not null;default:0"`
	Question       string    `gorm:"column:question;type:text;not null;default:''"`
	Description    string    `gorm:"column:description;type:text;not null;default:''"`
	Result         string    `gorm:"column:result;size:190;not null;default:''"`
	VotedAt        time.Time `gorm:"column:voted_at;not null"`
	TotalYes       int       `gorm:"column:total_yes;not null;default:0"`
	TotalNo        int       `gorm:"column:total_no;not null;default:0"`
	TotalNotVoting int       `gorm:"column:total_not_voting;not null;default:0"`
	TotalPresent   int       `gorm:"column:total_present;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (BillVote) TableName() string {
	return "bill_votes"
}

// RepresentativeVote is one representative's position on one roll call.
type RepresentativeVote struct {
	ID               uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RepresentativeID uint      `gorm:"column:representative_id;not null;uniqueIndex:idx_representative_vote_key,priority:1"`
	BillVoteID       uint      `gorm:"column:bill_vote_id;not null;uniqueIndex:idx_representative_vote_key,priority:2"`
	BillID           uint      `gorm:"column:bill_id;not null;uniqueIndex:idx_representative_vote_key,priority:3;index"`
	Position         string    `gorm:"column:position;size:32;not null"`
	VotedAt          time.Time `gorm:"column:voted_at;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (RepresentativeVote) TableName() string {
	return "representative_votes"
}

// BillSchedule carries floor scheduling fields for an existing bill.
type BillSchedule struct {
	PropublicaID      string
	ScheduledAt       *time.Time
	LegislativeDay    *time.Time
	ScheduleRange     string
	NextConsideration string
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{
		&Representative{},
		&Issue{},
		&Bill{},
		&BillCosponsor{},
		&BillSecondaryIssue{},
		&BillFullText{},
		&BillVote{},
		&RepresentativeVote{},
	}
}
