// Package cache derives cache keys for legislative read models and stores values with a TTL.
package cache

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of cached read models.
type Kind uint8

const (
	// RepresentativeStats caches one representative's vote statistics.
	RepresentativeStats Kind = iota
	// RepresentativeVotes caches one representative's vote list.
	RepresentativeVotes
	// RepresentativeBillPosition caches one representative's position on one bill.
	RepresentativeBillPosition
	// BillDetail caches one bill's detail view.
	BillDetail

	kindCount
)

type kindSpec struct {
	name   string
	prefix string
	arity  int
	ttl    time.Duration
}

// kindSpecs holds exactly one entry per Kind; the assertions below fail to
// compile when a Kind is added without a spec or a spec without a Kind.
var kindSpecs = [...]kindSpec{
	RepresentativeStats:        {name: "representative_stats", prefix: "rep-stats", arity: 1, ttl: 12 * time.Hour},
	RepresentativeVotes:        {name: "representative_votes", prefix: "rep-votes", arity: 1, ttl: 6 * time.Hour},
	RepresentativeBillPosition: {name: "representative_bill_position", prefix: "rep-bill-vote", arity: 2, ttl: 6 * time.Hour},
	BillDetail:                 {name: "bill", prefix: "bill", arity: 1, ttl: time.Hour},
}

var (
	_ [len(kindSpecs) - int(kindCount)]struct{}
	_ [int(kindCount) - len(kindSpecs)]struct{}
)

// String returns the kind name.
func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindSpecs[k].name
}

// TTL returns the expiry for entries of this kind.
func (k Kind) TTL() time.Duration {
	if k >= kindCount {
		return 0
	}
	return kindSpecs[k].ttl
}

// Key derives the cache key for kind and its id fields, e.g. "rep-bill-vote:12:40".
func Key(kind Kind, ids ...uint) (string, error) {
	if kind >= kindCount {
		return "", fmt.Errorf("cache: unknown kind %d", uint8(kind))
	}
	spec := kindSpecs[kind]
	if len(ids) != spec.arity {
		return "", fmt.Errorf("cache: %s key needs %d ids, got %d", spec.name, spec.arity, len(ids))
	}
	parts := make([]string, 0, len(ids)+1)
	parts = append(parts, spec.prefix)
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ":"), nil
}
