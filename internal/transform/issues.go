package transform

import (
	"sort"
	"strings"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
)

// IssueMatch is the outcome of matching a bill's subjects against the taxonomy.
type IssueMatch struct {
	PrimaryIssueID    *uint
	SecondaryIssueIDs []uint
}

// MatchIssues picks at most one primary issue, the lowest-id issue listing
// the primary subject, and every issue sharing a subject with the bill.
// Subject comparison ignores case and surrounding space.
func MatchIssues(primarySubject string, subjects []string, issues []legislation.Issue) IssueMatch {
	ordered := make([]legislation.Issue, len(issues))
	copy(ordered, issues)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	primaryKey := subjectKey(primarySubject)
	billSubjects := make(map[string]struct{}, len(subjects))
	for _, subject := range subjects {
		if key := subjectKey(subject); key != "" {
			billSubjects[key] = struct{}{}
		}
	}

	var match IssueMatch
	for _, issue := range ordered {
		matchesPrimary := false
		matchesAny := false
		for _, subject := range issue.Subjects {
			key := subjectKey(subject)
			if key == "" {
				continue
			}
			if key == primaryKey {
				matchesPrimary = true
			}
			if _, ok := billSubjects[key]; ok {
				matchesAny = true
			}
		}
		if matchesPrimary && match.PrimaryIssueID == nil {
			id := issue.ID
			match.PrimaryIssueID = &id
		}
		if matchesAny {
			match.SecondaryIssueIDs = append(match.SecondaryIssueIDs, issue.ID)
		}
	}
	return match
}

func subjectKey(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}
