package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"github.com/smallbiznis/backoffice/internal/subscription/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	merchantStatusActive = "ACTIVE"
	expireBatchSize      = 200
	entity               = "subscription"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Platform *config.PlatformConfigHolder
	Metrics  *metrics.LifecycleMetrics `optional:"true"`
	AuditSvc auditdomain.Service       `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	platform *config.PlatformConfigHolder
	metrics  *metrics.LifecycleMetrics
	auditSvc auditdomain.Service
}

func New(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		platform: p.Platform,
		metrics:  p.Metrics,
		auditSvc: p.AuditSvc,
	}
}

var _ domain.Service = (*Service)(nil)

// ProvisionTrial creates the ACTIVE_TRIAL subscription using the current
// platform defaults. It must run inside the approval transaction.
func (s *Service) ProvisionTrial(ctx context.Context, tx *gorm.DB, merchantID snowflake.ID, now time.Time) (*domain.Subscription, error) {
	existing, err := s.repo.FindByMerchantID(ctx, tx, merchantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAlreadyProvisioned
	}

	defaults := s.platform.Get()
	trialEnd := now.Add(trialLength(defaults.DefaultTrialPeriodDays))
	sub := &domain.Subscription{
		ID:                 s.genID.Generate(),
		MerchantID:         merchantID,
		Status:             domain.StatusActiveTrial,
		TrialEndDate:       &trialEnd,
		TransactionFeeRate: defaults.DefaultTransactionFeeRate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, tx, sub); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyProvisioned
		}
		return nil, err
	}
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	subID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrNotFound
	}
	return s.present(ctx, sub)
}

func (s *Service) GetByMerchant(ctx context.Context, merchantID string) (*domain.Response, error) {
	id, err := parseID(merchantID)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByMerchantID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	return s.present(ctx, sub)
}

func (s *Service) StatusForMerchant(ctx context.Context, merchantID string) (*domain.StatusResponse, error) {
	resp, err := s.GetByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &domain.StatusResponse{}, nil
	}
	return &domain.StatusResponse{
		HasSubscription:   true,
		Status:            resp.Status,
		IsActive:          resp.IsActive,
		EffectiveIsActive: resp.EffectiveIsActive,
		DaysRemaining:     resp.DaysRemaining,
		TrialEndDate:      resp.TrialEndDate,
	}, nil
}

func (s *Service) ConvertToPaid(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, domain.StatusActivePaid, "subscription.converted", func(_ context.Context, _ *gorm.DB, sub *domain.Subscription, now time.Time) (domain.Transition, error) {
		if sub.Status != domain.StatusActiveTrial {
			return domain.Transition{}, domain.ErrInvalidStateTransition
		}
		return domain.Transition{PaidAt: &now}, nil
	})
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, domain.StatusCancelled, "subscription.cancelled", func(_ context.Context, _ *gorm.DB, _ *domain.Subscription, now time.Time) (domain.Transition, error) {
		return domain.Transition{CancelledAt: &now}, nil
	})
}

// Reactivate moves an EXPIRED or CANCELLED subscription back to a trial
// with a fresh end date, or to paid. The merchant must be ACTIVE.
func (s *Service) Reactivate(ctx context.Context, req domain.ReactivateRequest) (*domain.Response, error) {
	target := domain.Status(strings.ToUpper(strings.TrimSpace(string(req.Target))))
	if target != domain.StatusActiveTrial && target != domain.StatusActivePaid {
		return nil, domain.ErrInvalidTarget
	}
	if req.TrialDays != nil && (target != domain.StatusActiveTrial || *req.TrialDays < 1) {
		return nil, domain.ErrInvalidTrialDays
	}

	return s.transition(ctx, req.ID, target, "subscription.reactivated", func(ctx context.Context, tx *gorm.DB, sub *domain.Subscription, now time.Time) (domain.Transition, error) {
		if sub.Status != domain.StatusExpired && sub.Status != domain.StatusCancelled {
			return domain.Transition{}, domain.ErrInvalidStateTransition
		}
		status, err := s.repo.MerchantStatus(ctx, tx, sub.MerchantID)
		if err != nil {
			return domain.Transition{}, err
		}
		if status != merchantStatusActive {
			return domain.Transition{}, domain.ErrMerchantNotActive
		}

		t := domain.Transition{ReactivatedAt: &now}
		if target == domain.StatusActivePaid {
			t.PaidAt = &now
			return t, nil
		}
		days := s.platform.Get().DefaultTrialPeriodDays
		if req.TrialDays != nil {
			days = *req.TrialDays
		}
		end := now.Add(trialLength(days))
		t.TrialEndDate = &end
		return t, nil
	})
}

func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	total := 0
	for {
		ids, err := s.repo.ListDueTrialIDs(ctx, s.db, now, expireBatchSize)
		if err != nil {
			return total, err
		}

		expired := 0
		for _, id := range ids {
			ok, err := s.repo.ExpireIfDue(ctx, s.db, id, now)
			if err != nil {
				s.metrics.RecordTransition(entity, string(domain.StatusActiveTrial), string(domain.StatusExpired), metrics.ResultError)
				return total, err
			}
			if !ok {
				continue
			}
			expired++
			s.metrics.RecordTransition(entity, string(domain.StatusActiveTrial), string(domain.StatusExpired), metrics.ResultOK)
			s.audit(ctx, "subscription.expired", id, map[string]any{"trigger": "sweep"})
		}
		total += expired

		if len(ids) < expireBatchSize || expired == 0 {
			return total, nil
		}
	}
}

type transitionFunc func(ctx context.Context, tx *gorm.DB, sub *domain.Subscription, now time.Time) (domain.Transition, error)

// transition applies a conditional status change. A due trial is expired
// first so the allowed-from check sees its real state.
func (s *Service) transition(ctx context.Context, id string, to domain.Status, action string, build transitionFunc) (*domain.Response, error) {
	subID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var from domain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByID(ctx, tx, subID)
		if err != nil {
			return err
		}
		if sub == nil {
			return domain.ErrNotFound
		}
		if sub.TrialDue(now) {
			expired, err := s.repo.ExpireIfDue(ctx, tx, sub.ID, now)
			if err != nil {
				return err
			}
			if expired {
				sub.Status = domain.StatusExpired
			}
		}

		from = sub.Status
		if !isTransitionAllowed(from, to) {
			return domain.ErrInvalidStateTransition
		}

		t, err := build(ctx, tx, sub, now)
		if err != nil {
			return err
		}
		t.From, t.To, t.At = from, to, now
		applied, err := s.repo.Apply(ctx, tx, sub.ID, t)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidStateTransition
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordTransition(entity, string(from), string(to), resultFor(err))
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("subscription transition rejected",
				zap.String("subscription_id", subID.String()),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.metrics.RecordTransition(entity, string(from), string(to), metrics.ResultOK)
	s.audit(ctx, action, subID, map[string]any{"from": string(from), "to": string(to)})
	return s.Get(ctx, subID.String())
}

// present expires a due trial before building the view so a past trial
// end date is never reported as ACTIVE_TRIAL.
func (s *Service) present(ctx context.Context, sub *domain.Subscription) (*domain.Response, error) {
	now := s.clock.Now()
	if sub.TrialDue(now) {
		expired, err := s.repo.ExpireIfDue(ctx, s.db, sub.ID, now)
		if err != nil {
			return nil, err
		}
		if expired {
			s.metrics.RecordTransition(entity, string(domain.StatusActiveTrial), string(domain.StatusExpired), metrics.ResultOK)
			s.audit(ctx, "subscription.expired", sub.ID, map[string]any{"trigger": "read"})
		}
		if sub, err = s.repo.FindByID(ctx, s.db, sub.ID); err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, domain.ErrNotFound
		}
	}

	merchantStatus, err := s.repo.MerchantStatus(ctx, s.db, sub.MerchantID)
	if err != nil {
		return nil, err
	}
	return toResponse(sub, merchantStatus, now), nil
}

func (s *Service) audit(ctx context.Context, action string, id snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: entity,
		TargetID:   id.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func toResponse(sub *domain.Subscription, merchantStatus string, now time.Time) *domain.Response {
	active := sub.Status.IsActive()
	return &domain.Response{
		ID:                 sub.ID.String(),
		MerchantID:         sub.MerchantID.String(),
		Status:             sub.Status,
		TrialEndDate:       sub.TrialEndDate,
		TransactionFeeRate: sub.TransactionFeeRate,
		IsActive:           active,
		DaysRemaining:      sub.DaysRemaining(now),
		EffectiveIsActive:  active && merchantStatus == merchantStatusActive,
		MerchantStatus:     merchantStatus,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	}
}

// isTransitionAllowed covers operator-driven changes. TRIAL to EXPIRED is
// time-driven only and never passes through here.
func isTransitionAllowed(current, target domain.Status) bool {
	switch current {
	case domain.StatusActiveTrial:
		return target == domain.StatusActivePaid || target == domain.StatusCancelled
	case domain.StatusActivePaid:
		return target == domain.StatusCancelled
	case domain.StatusExpired:
		return target == domain.StatusCancelled || target == domain.StatusActiveTrial || target == domain.StatusActivePaid
	case domain.StatusCancelled:
		return target == domain.StatusActiveTrial || target == domain.StatusActivePaid
	default:
		return false
	}
}

func resultFor(err error) string {
	if errors.Is(err, domain.ErrInvalidStateTransition) || errors.Is(err, domain.ErrMerchantNotActive) {
		return metrics.ResultConflict
	}
	return metrics.ResultError
}

func trialLength(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
