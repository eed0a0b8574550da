// Package transform maps ProPublica records onto the canonical legislative entities.
package transform

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/propublica"
)

const (
	senateShortTitle = "Sen."
	imageURLPattern  = "https://theunitedstates.io/images/congress/450x550/%s.jpg"
	dateLayout       = "2006-01-02"
	voteTimeZone     = "America/New_York"
)

var voteLocation = mustLoadLocation(voteTimeZone)

func mustLoadLocation(name string) *time.Location {
	location, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("transform: load %s: %v", name, err))
	}
	return location
}

// ChamberFromShortTitle derives the chamber from a member title code.
func ChamberFromShortTitle(shortTitle string) legislation.Chamber {
	if strings.TrimSpace(shortTitle) == senateShortTitle {
		return legislation.ChamberSenate
	}
	return legislation.ChamberHouse
}

// RepresentativeImageURL returns the portrait location for a member id.
func RepresentativeImageURL(propublicaID string) string {
	return fmt.Sprintf(imageURLPattern, propublicaID)
}

// RepresentativeFromMember maps a roster entry.
func RepresentativeFromMember(member propublica.Member) legislation.Representative {
	return legislation.Representative{
		PropublicaID:         member.ID,
		FirstName:            strings.TrimSpace(member.FirstName),
		LastName:             strings.TrimSpace(member.LastName),
		ShortTitle:           strings.TrimSpace(member.ShortTitle),
		Title:                strings.TrimSpace(member.Title),
		Chamber:              ChamberFromShortTitle(member.ShortTitle),
		Party:                member.Party,
		State:                member.State,
		District:             member.District,
		InOffice:             member.InOffice,
		Website:              member.URL,
		Twitter:              member.TwitterAccount,
		Phone:                member.Phone,
		NextElection:         member.NextElection,
		ImageURL:             RepresentativeImageURL(member.ID),
		TotalVotes:           member.TotalVotes,
		MissedVotes:          member.MissedVotes,
		TotalPresent:         member.TotalPresent,
		MissedVotesPct:       member.MissedVotesPct,
		VotesWithPartyPct:    member.VotesWithPartyPct,
		VotesAgainstPartyPct: member.VotesAgainstPartyPct,
	}
}

// ChamberFromBillType maps hr/hres/hjres/hconres to the house and s-prefixed types to the senate.
func ChamberFromBillType(billType string) legislation.Chamber {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(billType)), "s") {
		return legislation.ChamberSenate
	}
	return legislation.ChamberHouse
}

// BillFromRecord maps a listing entry. The sponsor link is resolved separately.
func BillFromRecord(record propublica.BillRecord, congress int) legislation.Bill {
	return legislation.Bill{
		PropublicaID:          record.BillID,
		Code:                  strings.ToLower(strings.TrimSpace(record.BillSlug)),
		BillType:              strings.ToLower(strings.TrimSpace(record.BillType)),
		Number:                record.Number,
		Congress:              congress,
		Chamber:               ChamberFromBillType(record.BillType),
		Title:                 record.Title,
		ShortTitle:            record.ShortTitle,
		PrimarySubject:        record.PrimarySubject,
		Summary:               record.Summary,
		SummaryShort:          record.SummaryShort,
		IntroducedDate:        ParseDate(record.IntroducedDate),
		LastVote:              ParseDate(record.LastVote),
		HousePassage:          ParseDate(record.HousePassage),
		SenatePassage:         ParseDate(record.SenatePassage),
		Enacted:               ParseDate(record.Enacted),
		Vetoed:                ParseDate(record.Vetoed),
		LatestMajorActionDate: ParseDate(record.LatestMajorActionDate),
		LatestMajorAction:     record.LatestMajorAction,
		Active:                record.Active,
		CommitteeCodes:        record.CommitteeCodes,
		GovtrackURL:           record.GovtrackURL,
		CongressdotgovURL:     record.CongressdotgovURL,
	}
}

// ParseDate parses a nullable YYYY-MM-DD value as a UTC date. Blank and
// malformed values map to nil.
func ParseDate(value *string) *time.Time {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	parsed, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		return nil
	}
	return &parsed
}

// MergeBillRecords concatenates updated before introduced and drops later
// duplicates by bill id, so an updated record wins over an introduced one.
func MergeBillRecords(updated, introduced []propublica.BillRecord) []propublica.BillRecord {
	merged := make([]propublica.BillRecord, 0, len(updated)+len(introduced))
	seen := make(map[string]struct{}, len(updated)+len(introduced))
	for _, list := range [][]propublica.BillRecord{updated, introduced} {
		for _, record := range list {
			if record.BillID == "" {
				continue
			}
			if _, ok := seen[record.BillID]; ok {
				continue
			}
			seen[record.BillID] = struct{}{}
			merged = append(merged, record)
		}
	}
	return merged
}

// VoteTimestamp combines the separate date and time fields of a roll call,
// read as Eastern time. A blank time yields midnight.
func VoteTimestamp(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return time.ParseInLocation(dateLayout, date, voteLocation)
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if parsed, err := time.ParseInLocation(layout, date+" "+clock, voteLocation); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("transform: invalid vote timestamp %q %q", date, clock)
}

// BillVoteFromRecord maps a roll call on the given bill.
func BillVoteFromRecord(record propublica.VoteRecord, billID uint, congress int) (legislation.BillVote, error) {
	votedAt, err := VoteTimestamp(record.Date, record.Time)
	if err != nil {
		return legislation.BillVote{}, err
	}
	return legislation.BillVote{
		APIURL:         record.APIURL,
		BillID:         billID,
		Chamber:        legislation.Chamber(strings.ToLower(strings.TrimSpace(record.Chamber))),
		Congress:       congress,
		RollCall:       int(record.RollCall),
		Question:       record.Question,
		Result:         record.Result,
		VotedAt:        votedAt.UTC(),
		TotalYes:       int(record.TotalYes),
		TotalNo:        int(record.TotalNo),
		TotalNotVoting: int(record.TotalNotVoting),
	}, nil
}

// RepresentativeVoteFromPosition maps one member position on a stored roll call.
func RepresentativeVoteFromPosition(position propublica.PositionRecord, representativeID uint, vote legislation.BillVote) legislation.RepresentativeVote {
	return legislation.RepresentativeVote{
		RepresentativeID: representativeID,
		BillVoteID:       vote.ID,
		BillID:           vote.BillID,
		Position:         strings.TrimSpace(position.VotePosition),
		VotedAt:          vote.VotedAt,
	}
}

// ScheduleFromUpcoming maps a floor schedule entry. Entries without a bill id
// are keyed by slug and congress.
func ScheduleFromUpcoming(record propublica.UpcomingBillRecord, congress int) legislation.BillSchedule {
	propublicaID := strings.TrimSpace(record.BillID)
	if propublicaID == "" && record.BillSlug != "" {
		propublicaID = fmt.Sprintf("%s-%d", strings.ToLower(record.BillSlug), congress)
	}
	return legislation.BillSchedule{
		PropublicaID:      propublicaID,
		ScheduledAt:       parseTimestamp(record.ScheduledAt),
		LegislativeDay:    ParseDate(&record.LegislativeDay),
		ScheduleRange:     record.Range,
		NextConsideration: strings.TrimSpace(record.Context),
	}
}

func parseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05 -0700", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return ParseDate(&value)
}
