package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mafaconnect/backend/internal/cache"
	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/lock"
	"mafaconnect/backend/internal/reorder"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/worker"
	"mafaconnect/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	defaultLockTTL  = 10 * time.Second
	defaultStatsTTL = 60 * time.Second

	loyaltyStatsKey = "loyalty:stats"
)

// Dependencies are the optional collaborators of Service. Zero values fall
// back to in-process implementations.
type Dependencies struct {
	Locker   lock.Locker
	Jobs     *worker.Dispatcher
	Cache    cache.JSONCache
	Reorder  *reorder.Engine
	LockTTL  time.Duration
	StatsTTL time.Duration
}

type Service struct {
	repo     store.Repository
	locker   lock.Locker
	jobs     *worker.Dispatcher
	cache    cache.JSONCache
	reorder  *reorder.Engine
	lockTTL  time.Duration
	statsTTL time.Duration
	now      func() time.Time
}

func New(repo store.Repository, deps Dependencies) *Service {
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.Jobs == nil {
		deps.Jobs = worker.NewDispatcher(nil)
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Reorder == nil {
		deps.Reorder = reorder.NewEngine(deps.Cache, 0)
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = defaultLockTTL
	}
	if deps.StatsTTL <= 0 {
		deps.StatsTTL = defaultStatsTTL
	}

	s := &Service{
		repo:     repo,
		locker:   deps.Locker,
		jobs:     deps.Jobs,
		cache:    deps.Cache,
		reorder:  deps.Reorder,
		lockTTL:  deps.LockTTL,
		statsTTL: deps.StatsTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.jobs.Register(worker.JobLowStock, s.handleLowStock)
	return s
}

// authorize resolves the caller and checks perm against the role table.
func (s *Service) authorize(ctx context.Context, perm domain.Permission) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no authenticated actor", domain.ErrForbidden)
	}
	if err := domain.Authorize(actor.Role, perm); err != nil {
		return domain.Actor{}, err
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     string(actor.Role),
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Warn().Err(err).
			Str("component", "audit").
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

// lockStock holds the stock keys of every (product, location) pair for the
// duration of a write.
func (s *Service) lockStock(ctx context.Context, locationID string, productIDs ...string) (func(context.Context), error) {
	keys := make([]string, 0, len(productIDs))
	for _, productID := range productIDs {
		keys = append(keys, lock.StockKey(productID, locationID))
	}
	return lock.ObtainAll(ctx, s.locker, keys, s.lockTTL)
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}
