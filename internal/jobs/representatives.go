package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/Breakdown/breakdown-services-sub000/internal/cache"
	"github.com/Breakdown/breakdown-services-sub000/internal/changes"
	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/propublica"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/Breakdown/breakdown-services-sub000/internal/transform"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	memberPageSize = 20
	maxMemberPages = 50
)

var chambers = []legislation.Chamber{legislation.ChamberHouse, legislation.ChamberSenate}

// SyncRepresentatives refreshes both rosters and busts the stats cache of
// every representative whose vote statistics moved.
func (h *Handlers) SyncRepresentatives(ctx context.Context, task queue.Task) error {
	rosters := make([][]propublica.Member, len(chambers))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, chamber := range chambers {
		group.Go(func() error {
			members, err := h.fetchRoster(groupCtx, chamber)
			if err != nil {
				return fmt.Errorf("fetch %s roster: %w", chamber, err)
			}
			rosters[i] = members
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	var current []legislation.Representative
	seen := make(map[string]struct{})
	for _, roster := range rosters {
		for _, member := range roster {
			if member.ID == "" {
				continue
			}
			if _, ok := seen[member.ID]; ok {
				continue
			}
			seen[member.ID] = struct{}{}
			current = append(current, transform.RepresentativeFromMember(member))
		}
	}
	if len(current) == 0 {
		h.logger.Warn("representative rosters were empty", zap.String("task_id", task.ID))
		return nil
	}

	ids := make([]string, 0, len(current))
	for _, representative := range current {
		ids = append(ids, representative.PropublicaID)
	}
	previous, err := h.store.RepresentativesByPropublicaIDs(ctx, ids)
	if err != nil {
		return err
	}
	if err := h.store.UpsertRepresentatives(ctx, current); err != nil {
		return err
	}

	localIDs := make(map[string]uint, len(previous))
	for _, representative := range previous {
		localIDs[representative.PropublicaID] = representative.ID
	}
	stale := changes.StaleRepresentativeStats(previous, current)
	var cacheErrs []error
	for _, propublicaID := range stale {
		if err := h.invalidate(ctx, cache.RepresentativeStats, localIDs[propublicaID]); err != nil {
			cacheErrs = append(cacheErrs, err)
		}
	}

	h.logger.Info("representatives synced",
		zap.String("task_id", task.ID),
		zap.Int("count", len(current)),
		zap.Int("stats_invalidated", len(stale)))
	return errors.Join(cacheErrs...)
}

// fetchRoster pages through one chamber until a short page.
func (h *Handlers) fetchRoster(ctx context.Context, chamber legislation.Chamber) ([]propublica.Member, error) {
	var members []propublica.Member
	for page := 0; page < maxMemberPages; page++ {
		batch, err := h.source.FetchMembers(ctx, chamber.String(), len(members))
		if err != nil {
			return nil, err
		}
		members = append(members, batch...)
		if len(batch) != memberPageSize {
			break
		}
	}
	return members, nil
}
