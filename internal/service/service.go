package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mypharma/backend/internal/advisor"
	"mypharma/backend/internal/cache"
	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
	"mypharma/backend/internal/xid"
)

var ErrUnauthenticated = errors.New("authentication required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	SaleTxTimeout     time.Duration
	StatsCacheTTL     time.Duration
	LowStockThreshold int
}

type Service struct {
	repo    store.Repository
	advisor *advisor.Advisor
	cache   cache.Cache
	opts    Options
	now     func() time.Time
}

func New(repo store.Repository, alerts *advisor.Advisor, statsCache cache.Cache, opts Options) *Service {
	if statsCache == nil {
		statsCache = cache.Noop{}
	}
	if alerts == nil {
		alerts = advisor.New(statsCache, 0, opts.LowStockThreshold, 0)
	}
	if opts.SaleTxTimeout <= 0 {
		opts.SaleTxTimeout = 5 * time.Second
	}
	if opts.StatsCacheTTL <= 0 {
		opts.StatsCacheTTL = 30 * time.Second
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = 150
	}

	return &Service{
		repo:    repo,
		advisor: alerts,
		cache:   statsCache,
		opts:    opts,
		now:     time.Now,
	}
}

func (s *Service) accountID(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.AccountID == "" {
		return "", ErrUnauthenticated
	}
	return actor.AccountID, nil
}

// runAtomic runs fn in one unit of work bounded by the sale timeout. A write
// conflict is retried once; a second conflict, a timeout or any store failure
// is reported as ErrStoreUnavailable. Domain errors pass through untouched.
func (s *Service) runAtomic(ctx context.Context, op string, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	attempt := func() error {
		txCtx, cancel := context.WithTimeout(ctx, s.opts.SaleTxTimeout)
		defer cancel()
		return s.repo.RunInTx(txCtx, fn)
	}

	err := attempt()
	if errors.Is(err, store.ErrWriteConflict) {
		zap.S().Warnw("write conflict, retrying once", "op", op, "error", err)
		err = attempt()
		if errors.Is(err, store.ErrWriteConflict) {
			return fmt.Errorf("%w: %s: write conflict persisted after retry", store.ErrStoreUnavailable, op)
		}
	}
	if err == nil || isDomainError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: transaction timed out", store.ErrStoreUnavailable, op)
	}
	zap.S().Errorw("unit of work failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", store.ErrStoreUnavailable, op, err)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		store.ErrValidation,
		store.ErrItemNotFound,
		store.ErrCustomerNotFound,
		store.ErrInsufficientStock,
		store.ErrNotFound,
		store.ErrDuplicate,
		store.ErrStoreUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// invalidate drops the cached dashboard stats and inventory alerts of the
// account after a mutation.
func (s *Service) invalidate(ctx context.Context, accountID string) {
	if err := s.cache.Delete(ctx, statsCacheKey(accountID)); err != nil {
		zap.S().Warnw("cache invalidate failed", "key", statsCacheKey(accountID), "error", err)
	}
	if err := s.advisor.Invalidate(ctx, accountID); err != nil {
		zap.S().Warnw("cache invalidate failed", "key", advisor.CacheKey(accountID), "error", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Email: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		AccountID:  actor.AccountID,
		Actor:      actor.Email,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		zap.S().Warnw("audit write failed", "action", action, "entity", entityType+"/"+entityID, "error", err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, accountID, limit)
}

func (s *Service) GetAccount(ctx context.Context) (domain.Account, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	account, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	return *account, nil
}
