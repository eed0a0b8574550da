package search

import (
	"context"
	"fmt"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
)

// Corpus is the full set of records indexed by a rebuild.
type Corpus struct {
	Bills           []legislation.Bill
	Representatives []legislation.Representative
	Issues          []legislation.Issue
}

// Counts reports how many documents each index received.
type Counts struct {
	Bills           int
	Representatives int
	Issues          int
}

// Rebuild drops and recreates every index, then bulk-loads the corpus.
func Rebuild(ctx context.Context, indexer Indexer, corpus Corpus) (Counts, error) {
	bills := make([]BillDocument, 0, len(corpus.Bills))
	for _, bill := range corpus.Bills {
		bills = append(bills, NewBillDocument(bill))
	}
	representatives := make([]RepresentativeDocument, 0, len(corpus.Representatives))
	for _, representative := range corpus.Representatives {
		representatives = append(representatives, NewRepresentativeDocument(representative))
	}
	issues := make([]IssueDocument, 0, len(corpus.Issues))
	for _, issue := range corpus.Issues {
		issues = append(issues, NewIssueDocument(issue))
	}

	indices := []struct {
		uid       string
		documents any
	}{
		{uid: BillsIndex, documents: bills},
		{uid: RepresentativesIndex, documents: representatives},
		{uid: IssuesIndex, documents: issues},
	}
	for _, index := range indices {
		if err := indexer.DeleteIndex(ctx, index.uid); err != nil {
			return Counts{}, fmt.Errorf("delete %s index: %w", index.uid, err)
		}
		if err := indexer.CreateIndex(ctx, index.uid, primaryKey); err != nil {
			return Counts{}, fmt.Errorf("create %s index: %w", index.uid, err)
		}
		if err := indexer.AddDocuments(ctx, index.uid, index.documents); err != nil {
			return Counts{}, fmt.Errorf("add %s documents: %w", index.uid, err)
		}
	}
	return Counts{Bills: len(bills), Representatives: len(representatives), Issues: len(issues)}, nil
}
