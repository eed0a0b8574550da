// Package changes compares stored snapshots with fresh records to decide side effects.
package changes

import (
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
)

// RepresentativeStatsChanged reports whether any vote statistic differs.
func RepresentativeStatsChanged(previous, current legislation.Representative) bool {
	return previous.TotalVotes != current.TotalVotes ||
		previous.MissedVotes != current.MissedVotes ||
		previous.TotalPresent != current.TotalPresent ||
		previous.MissedVotesPct != current.MissedVotesPct ||
		previous.VotesWithPartyPct != current.VotesWithPartyPct ||
		previous.VotesAgainstPartyPct != current.VotesAgainstPartyPct
}

// StaleRepresentativeStats returns the external ids of representatives whose
// statistics changed. Representatives without a prior snapshot are not reported.
func StaleRepresentativeStats(previous, current []legislation.Representative) []string {
	before := make(map[string]legislation.Representative, len(previous))
	for _, representative := range previous {
		before[representative.PropublicaID] = representative
	}
	var stale []string
	for _, representative := range current {
		prior, ok := before[representative.PropublicaID]
		if !ok {
			continue
		}
		if RepresentativeStatsChanged(prior, representative) {
			stale = append(stale, representative.PropublicaID)
		}
	}
	return stale
}

// BillChange describes the notification-worthy differences of one bill.
type BillChange struct {
	SummaryUpdated bool
	VotedOn        bool
}

// Any reports whether some difference was found.
func (c BillChange) Any() bool {
	return c.SummaryUpdated || c.VotedOn
}

// CompareBill diffs the pre-sync snapshot of a bill with its reloaded state.
// A nil previous snapshot means the bill was new in this run.
func CompareBill(previous *legislation.Bill, current legislation.Bill) BillChange {
	var previousSummary string
	var previousLastVote *time.Time
	if previous != nil {
		previousSummary = previous.Summary
		previousLastVote = previous.LastVote
	}
	return BillChange{
		SummaryUpdated: current.Summary != "" && current.Summary != previousSummary,
		VotedOn:        !sameInstant(previousLastVote, current.LastVote),
	}
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
