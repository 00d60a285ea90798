package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/commissary/internal/config"
	"github.com/smallbiznis/commissary/internal/idempotency/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
	Cfg config.Config
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	ttl time.Duration

	repo domain.Repository
}

func NewService(p Params, repo domain.Repository) domain.Service {
	ttl := p.Cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("idempotency.service"),
		ttl:  ttl,
		repo: repo,
	}
}

func (s *Service) Reserve(ctx context.Context, key string, scope domain.Scope) (domain.Reservation, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Reservation{}, domain.ErrInvalidKey
	}
	switch scope {
	case domain.ScopePaymentEvent, domain.ScopeCatalogItem:
	default:
		return domain.Reservation{}, domain.ErrInvalidScope
	}

	now := time.Now().UTC()
	inserted, err := s.repo.Insert(ctx, s.db, &domain.Record{
		Key:       key,
		Scope:     scope,
		Outcome:   domain.OutcomePending,
		CreatedAt: now,
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	if inserted {
		return domain.Reservation{Acquired: true}, nil
	}

	prior, err := s.repo.Find(ctx, s.db, key)
	if err != nil {
		return domain.Reservation{}, err
	}
	if prior == nil {
		// Keys are never deleted, so a lost insert with no row is a
		// storage fault, not a duplicate.
		return domain.Reservation{}, domain.ErrNotReserved
	}

	if prior.FinalizedAt != nil {
		return domain.Reservation{
			Outcome:   prior.Outcome,
			ResultRef: derefString(prior.ResultRef),
		}, nil
	}

	// Unfinalized reservation from an earlier attempt. Within the TTL it
	// is treated as in flight and reported as a skip; past the TTL the
	// retrying caller takes it over.
	staleBefore := now.Add(-s.ttl)
	if prior.CreatedAt.Before(staleBefore) {
		reclaimed, err := s.repo.Reclaim(ctx, s.db, key, staleBefore, now)
		if err != nil {
			return domain.Reservation{}, err
		}
		if reclaimed {
			s.log.Info("reclaimed stale reservation",
				zap.String("key", key),
				zap.String("scope", string(scope)),
				zap.Time("reserved_at", prior.CreatedAt),
			)
			return domain.Reservation{Acquired: true}, nil
		}
		// Lost the reclaim race; fall through to the duplicate outcome.
		prior, err = s.repo.Find(ctx, s.db, key)
		if err != nil {
			return domain.Reservation{}, err
		}
		if prior != nil && prior.FinalizedAt != nil {
			return domain.Reservation{
				Outcome:   prior.Outcome,
				ResultRef: derefString(prior.ResultRef),
			}, nil
		}
	}

	return domain.Reservation{Outcome: domain.OutcomeSkipped}, nil
}

func (s *Service) Finalize(ctx context.Context, key string, resultRef string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrInvalidKey
	}

	updated, err := s.repo.Finalize(ctx, s.db, key, resultRef, time.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		prior, err := s.repo.Find(ctx, s.db, key)
		if err != nil {
			return err
		}
		if prior == nil {
			return domain.ErrNotReserved
		}
		// Already finalized; finalize is idempotent.
	}
	return nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
