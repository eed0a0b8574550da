// Package search rebuilds the full-text indices that back legislative search.
package search

import (
	"strings"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
)

// Index names.
const (
	BillsIndex           = "bills"
	RepresentativesIndex = "representatives"
	IssuesIndex          = "issues"
)

const primaryKey = "id"

var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "FL": "Florida", "GA": "Georgia",
	"HI": "Hawaii", "ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi", "MO": "Missouri",
	"MT": "Montana", "NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey",
	"NM": "New Mexico", "NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont",
	"VA": "Virginia", "WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
	"DC": "District of Columbia", "PR": "Puerto Rico", "GU": "Guam", "VI": "U.S. Virgin Islands",
	"AS": "American Samoa", "MP": "Northern Mariana Islands",
}

var partyNames = map[string]string{
	"D":  "Democrat",
	"R":  "Republican",
	"I":  "Independent",
	"ID": "Independent Democrat",
	"L":  "Libertarian",
}

// StateName expands a postal code; unknown codes are returned unchanged.
func StateName(code string) string {
	if name, ok := stateNames[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return name
	}
	return code
}

// PartyName expands a party code; unknown codes are returned unchanged.
func PartyName(code string) string {
	if name, ok := partyNames[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return name
	}
	return code
}

// BillDocument is the flattened search view of a bill.
type BillDocument struct {
	ID                  uint     `json:"id"`
	Code                string   `json:"code"`
	Title               string   `json:"title"`
	ShortTitle          string   `json:"short_title"`
	Summary             string   `json:"summary"`
	AISummary           string   `json:"ai_summary,omitempty"`
	Congress            int      `json:"congress"`
	Chamber             string   `json:"chamber"`
	PrimarySubject      string   `json:"primary_subject,omitempty"`
	Subjects            []string `json:"subjects"`
	SponsorName         string   `json:"sponsor_name,omitempty"`
	PrimaryIssueName    string   `json:"primary_issue_name,omitempty"`
	SecondaryIssueNames []string `json:"secondary_issue_names"`
	LatestMajorAction   string   `json:"latest_major_action,omitempty"`
	IntroducedDate      int64    `json:"introduced_date,omitempty"`
}

// RepresentativeDocument is the flattened search view of a representative.
type RepresentativeDocument struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Chamber   string `json:"chamber"`
	State     string `json:"state"`
	StateName string `json:"state_name"`
	Party     string `json:"party"`
	PartyName string `json:"party_name"`
	District  string `json:"district,omitempty"`
	InOffice  bool   `json:"in_office"`
	ImageURL  string `json:"image_url,omitempty"`
}

// IssueDocument is the search view of an issue.
type IssueDocument struct {
	ID       uint     `json:"id"`
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Subjects []string `json:"subjects"`
}

// NewBillDocument denormalizes the sponsor and issue names onto the bill.
// The sponsor and issue associations must be preloaded.
func NewBillDocument(bill legislation.Bill) BillDocument {
	document := BillDocument{
		ID:                  bill.ID,
		Code:                bill.Code,
		Title:               bill.Title,
		ShortTitle:          bill.ShortTitle,
		Summary:             bill.Summary,
		AISummary:           bill.AISummary,
		Congress:            bill.Congress,
		Chamber:             bill.Chamber.String(),
		PrimarySubject:      bill.PrimarySubject,
		Subjects:            nonNil(bill.Subjects),
		LatestMajorAction:   bill.LatestMajorAction,
		SecondaryIssueNames: make([]string, 0, len(bill.SecondaryIssues)),
	}
	if bill.Sponsor != nil {
		document.SponsorName = bill.Sponsor.FullName()
	}
	if bill.PrimaryIssue != nil {
		document.PrimaryIssueName = bill.PrimaryIssue.Name
	}
	for _, issue := range bill.SecondaryIssues {
		document.SecondaryIssueNames = append(document.SecondaryIssueNames, issue.Name)
	}
	if bill.IntroducedDate != nil {
		document.IntroducedDate = bill.IntroducedDate.Unix()
	}
	return document
}

// NewRepresentativeDocument expands the state and party codes.
func NewRepresentativeDocument(representative legislation.Representative) RepresentativeDocument {
	return RepresentativeDocument{
		ID:        representative.ID,
		Name:      representative.FullName(),
		Title:     representative.Title,
		Chamber:   representative.Chamber.String(),
		State:     representative.State,
		StateName: StateName(representative.State),
		Party:     representative.Party,
		PartyName: PartyName(representative.Party),
		District:  representative.District,
		InOffice:  representative.InOffice,
		ImageURL:  representative.ImageURL,
	}
}

// NewIssueDocument maps an issue.
func NewIssueDocument(issue legislation.Issue) IssueDocument {
	return IssueDocument{
		ID:       issue.ID,
		Slug:     issue.Slug,
		Name:     issue.Name,
		Subjects: nonNil(issue.Subjects),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
