package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"group-registry/src/apierr"
	"group-registry/src/lib"
	"group-registry/src/models"
	"group-registry/src/storage"
)

const defaultGroupCreationLimit = 10

type GroupServiceConfig struct {
	Store              storage.Store
	Gatekeeper         *Gatekeeper
	History            *HistoryRecorder
	Notifier           Notifier
	Rewards            RewardSignal
	JoinLimiter        *JoinLimiter
	Scheduler          lib.Scheduler
	Metrics            *lib.Metrics
	Logger             *slog.Logger
	GroupCreationLimit int
	Now                func() time.Time
}

// GroupService is the membership engine: admission, the invite/join state
// machine, roles and group lifecycle. Every mutation commits through one
// store transaction; notifications and reward signals go out afterwards.
type GroupService struct {
	store       storage.Store
	gatekeeper  *Gatekeeper
	history     *HistoryRecorder
	notifier    Notifier
	rewards     RewardSignal
	joinLimiter *JoinLimiter
	scheduler   lib.Scheduler
	metrics     *lib.Metrics
	logger      *slog.Logger
	limit       int
	now         func() time.Time
}

func NewGroupService(cfg GroupServiceConfig) *GroupService {
	s := &GroupService{
		store:       cfg.Store,
		gatekeeper:  cfg.Gatekeeper,
		history:     cfg.History,
		notifier:    cfg.Notifier,
		rewards:     cfg.Rewards,
		joinLimiter: cfg.JoinLimiter,
		scheduler:   cfg.Scheduler,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		limit:       cfg.GroupCreationLimit,
		now:         cfg.Now,
	}
	if s.logger == nil {
		s.logger = lib.DiscardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.limit <= 0 {
		s.limit = defaultGroupCreationLimit
	}
	if s.gatekeeper == nil {
		s.gatekeeper = NewGatekeeper(nil, GatekeeperConfig{}, s.metrics, s.logger)
	}
	if s.scheduler == nil {
		s.scheduler = lib.NewTimerScheduler()
	}
	return s
}

func (s *GroupService) timestamp() int64 {
	return s.now().UnixNano()
}

// notFound converts a storage miss into the domain error for what.
func notFound(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apierr.NotFound(what + " not found")
	}
	return err
}

func (s *GroupService) loadGroup(ctx context.Context, groupID uint64) (models.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	return group, notFound(err, "group")
}

// lockGroup reads the group and holds it until the transaction ends.
func (s *GroupService) lockGroup(ctx context.Context, groupID uint64) (models.Group, error) {
	group, err := s.store.LockGroup(ctx, groupID)
	return group, notFound(err, "group")
}

func (s *GroupService) loadMember(ctx context.Context, principal string) (models.Member, error) {
	member, err := s.store.GetMember(ctx, principal)
	return member, notFound(err, "member")
}

// lockMember reads the member and holds it until the transaction ends.
func (s *GroupService) lockMember(ctx context.Context, principal string) (models.Member, error) {
	member, err := s.store.LockMember(ctx, principal)
	return member, notFound(err, "member")
}

// sideEffects collects post-commit work for one operation.
type sideEffects struct {
	notifications []models.Notification
	signals       []models.RewardSignal
}

func (e *sideEffects) notify(kind models.NotificationKind, groupID uint64, subject string, recipients []string, at int64) string {
	n := models.Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		GroupID:    groupID,
		Subject:    subject,
		Recipients: recipients,
		CreatedAt:  at,
	}
	e.notifications = append(e.notifications, n)
	return n.ID
}

func (e *sideEffects) last() *models.Notification {
	return &e.notifications[len(e.notifications)-1]
}

func (e *sideEffects) reward(kind models.RewardSignalKind, groupID uint64, principal string, at int64) {
	e.signals = append(e.signals, models.RewardSignal{Kind: kind, GroupID: groupID, Principal: principal, CreatedAt: at})
}

// flush dispatches collected effects. Failures are logged and dropped.
func (s *GroupService) flush(ctx context.Context, effects *sideEffects) {
	for _, n := range effects.notifications {
		if s.notifier == nil || len(n.Recipients) == 0 {
			continue
		}
		if _, err := s.notifier.Enqueue(ctx, n); err != nil {
			s.metrics.Inc("notification_dropped_total")
			s.logger.Warn("notification dispatch failed",
				"group_id", n.GroupID, "principal", n.Subject, "kind", n.Kind, "error", err)
		}
	}
	for _, signal := range effects.signals {
		if s.rewards == nil {
			continue
		}
		if err := s.rewards.Notify(ctx, signal); err != nil {
			s.metrics.Inc("reward_signal_dropped_total")
			s.logger.Warn("reward signal failed",
				"group_id", signal.GroupID, "principal", signal.Principal, "kind", signal.Kind, "error", err)
		}
	}
}

// mutate runs fn in a transaction and flushes its effects after commit.
func (s *GroupService) mutate(ctx context.Context, fn func(ctx context.Context, effects *sideEffects) error) error {
	effects := &sideEffects{}
	if err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		return fn(ctx, effects)
	}); err != nil {
		return err
	}
	s.flush(ctx, effects)
	return nil
}

func (s *GroupService) recordRoles(ctx context.Context, groupID uint64, principal string, roles []string, kind models.RoleChangeKind, at int64) error {
	if s.history == nil {
		return nil
	}
	return s.history.Record(ctx, groupID, principal, roles, kind, at)
}
