package propublica

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// BillListType selects a ranked bill listing.
type BillListType string

const (
	// BillsIntroduced lists recently introduced bills.
	BillsIntroduced BillListType = "introduced"
	// BillsUpdated lists recently updated bills.
	BillsUpdated BillListType = "updated"
)

// Member is a roster entry from the members endpoint.
type Member struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	ShortTitle           string  `json:"short_title"`
	FirstName            string  `json:"first_name"`
	LastName             string  `json:"last_name"`
	Party                string  `json:"party"`
	State                string  `json:"state"`
	District             string  `json:"district"`
	InOffice             bool    `json:"in_office"`
	URL                  string  `json:"url"`
	TwitterAccount       string  `json:"twitter_account"`
	Phone                string  `json:"phone"`
	NextElection         string  `json:"next_election"`
	TotalVotes           int     `json:"total_votes"`
	MissedVotes          int     `json:"missed_votes"`
	TotalPresent         int     `json:"total_present"`
	MissedVotesPct       float64 `json:"missed_votes_pct"`
	VotesWithPartyPct    float64 `json:"votes_with_party_pct"`
	VotesAgainstPartyPct float64 `json:"votes_against_party_pct"`
}

// BillRecord is a bill from the introduced/updated listings. Dates are
// YYYY-MM-DD strings and absent dates are null.
type BillRecord struct {
	BillID                string   `json:"bill_id"`
	BillSlug              string   `json:"bill_slug"`
	BillType              string   `json:"bill_type"`
	Number                string   `json:"number"`
	Title                 string   `json:"title"`
	ShortTitle            string   `json:"short_title"`
	SponsorID             string   `json:"sponsor_id"`
	SponsorParty          string   `json:"sponsor_party"`
	SponsorState          string   `json:"sponsor_state"`
	IntroducedDate        *string  `json:"introduced_date"`
	LastVote              *string  `json:"last_vote"`
	HousePassage          *string  `json:"house_passage"`
	SenatePassage         *string  `json:"senate_passage"`
	Enacted               *string  `json:"enacted"`
	Vetoed                *string  `json:"vetoed"`
	LatestMajorActionDate *string  `json:"latest_major_action_date"`
	LatestMajorAction     string   `json:"latest_major_action"`
	Active                bool     `json:"active"`
	PrimarySubject        string   `json:"primary_subject"`
	Summary               string   `json:"summary"`
	SummaryShort          string   `json:"summary_short"`
	Committees            string   `json:"committees"`
	CommitteeCodes        []string `json:"committee_codes"`
	GovtrackURL           string   `json:"govtrack_url"`
	CongressdotgovURL     string   `json:"congressdotgov_url"`
}

// CosponsorRecord is one cosponsor of a bill.
type CosponsorRecord struct {
	CosponsorID string `json:"cosponsor_id"`
	Name        string `json:"name"`
	Date        string `json:"date"`
}

// VoteRecord is one roll-call vote on a bill. Date and time arrive separately.
type VoteRecord struct {
	Chamber        string `json:"chamber"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	RollCall       Count  `json:"roll_call"`
	Question       string `json:"question"`
	Result         string `json:"result"`
	TotalYes       Count  `json:"total_yes"`
	TotalNo        Count  `json:"total_no"`
	TotalNotVoting Count  `json:"total_not_voting"`
	APIURL         string `json:"api_url"`
}

// PositionRecord is one member's position on a roll call.
type PositionRecord struct {
	MemberID     string `json:"member_id"`
	Name         string `json:"name"`
	Party        string `json:"party"`
	State        string `json:"state"`
	VotePosition string `json:"vote_position"`
}

// UpcomingBillRecord is a bill scheduled for floor consideration.
type UpcomingBillRecord struct {
	BillID         string `json:"bill_id"`
	BillSlug       string `json:"bill_slug"`
	BillType       string `json:"bill_type"`
	Chamber        string `json:"chamber"`
	ScheduledAt    string `json:"scheduled_at"`
	LegislativeDay string `json:"legislative_day"`
	Range          string `json:"range"`
	Context        string `json:"context"`
	Description    string `json:"description"`
}

// Count is an integer the API sends either bare or quoted ("256").
// Null and empty strings decode as zero.
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var quoted string
		if err := json.Unmarshal(data, &quoted); err != nil {
			return err
		}
		data = []byte(quoted)
		if len(bytes.TrimSpace(data)) == 0 {
			*c = 0
			return nil
		}
	}
	value, err := strconv.Atoi(string(bytes.TrimSpace(data)))
	if err != nil {
		return fmt.Errorf("propublica: invalid count %q: %w", data, err)
	}
	*c = Count(value)
	return nil
}
