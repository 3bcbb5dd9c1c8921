package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"group-registry/src/apierr"
	"group-registry/src/models"
	"group-registry/src/storage"
)

func boostKey(groupID uint64) string {
	return "boost:" + strconv.FormatUint(groupID, 10)
}

// BoostGroup promotes a group for d. Boosting an already boosted group
// extends it. Expiry runs through the injected scheduler.
func (s *GroupService) BoostGroup(ctx context.Context, caller string, groupID uint64, d time.Duration) (models.Boost, error) {
	if d <= 0 {
		return models.Boost{}, apierr.BadRequest("boost duration must be positive")
	}

	var boost models.Boost
	err := s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		if _, err := s.lockGroup(ctx, groupID); err != nil {
			return err
		}
		member, err := s.loadMember(ctx, caller)
		if err != nil {
			return err
		}
		if !member.IsGroupJoined(groupID) {
			return apierr.Unauthorized("not authorized: not a member of this group")
		}

		now := s.timestamp()
		start := now
		if existing, err := s.store.GetBoost(ctx, groupID); err == nil && existing.EndsAt > now {
			start = existing.EndsAt
		}
		boost = models.Boost{GroupID: groupID, BoostedBy: caller, StartedAt: now, EndsAt: start + d.Nanoseconds()}
		return s.store.PutBoost(ctx, boost)
	})
	if err != nil {
		return models.Boost{}, err
	}
	s.scheduleBoostExpiry(boost)
	return boost, nil
}

func (s *GroupService) scheduleBoostExpiry(boost models.Boost) {
	groupID := boost.GroupID
	s.scheduler.Schedule(boostKey(groupID), time.Unix(0, boost.EndsAt), func() {
		s.expireBoost(context.Background(), groupID)
	})
}

func (s *GroupService) expireBoost(ctx context.Context, groupID uint64) {
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		boost, err := s.store.GetBoost(ctx, groupID)
		if err != nil {
			return err
		}
		// A boost extended after this timer was armed has its own timer.
		if boost.EndsAt > s.timestamp() {
			return nil
		}
		_, err = s.store.DeleteBoost(ctx, groupID)
		return err
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("boost expiry failed", "group_id", groupID, "error", err)
	}
}

// RestoreBoosts re-arms expiry timers for boosts persisted before a restart.
func (s *GroupService) RestoreBoosts(ctx context.Context) (int, error) {
	boosts, err := s.store.ListBoosts(ctx)
	if err != nil {
		return 0, err
	}
	for _, boost := range boosts {
		s.scheduleBoostExpiry(boost)
	}
	return len(boosts), nil
}

func (s *GroupService) GetBoostedGroups(ctx context.Context) ([]models.Boost, error) {
	return s.store.ListBoosts(ctx)
}
