package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/merchant/domain"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/backoffice/internal/subscription/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	entity = "merchant"

	maxSlugAttempts = 3
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             domain.Repository
	Provisioner      subscriptiondomain.Provisioner
	SubscriptionRepo subscriptiondomain.Repository
	Metrics          *metrics.LifecycleMetrics `optional:"true"`
	AuditSvc         auditdomain.Service       `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             domain.Repository
	provisioner      subscriptiondomain.Provisioner
	subscriptionRepo subscriptiondomain.Repository
	metrics          *metrics.LifecycleMetrics
	auditSvc         auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("merchant.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		provisioner:      p.Provisioner,
		subscriptionRepo: p.SubscriptionRepo,
		metrics:          p.Metrics,
		auditSvc:         p.AuditSvc,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, domain.ErrInvalidEmail
	}

	profile := datatypes.JSONMap{}
	for key, value := range req.Profile {
		if strings.TrimSpace(key) != "" {
			profile[key] = value
		}
	}

	now := s.clock.Now()
	merchant := &domain.Merchant{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Status:    domain.StatusPendingApproval,
		IsActive:  false,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var err error
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			value, err := s.uniqueSlug(ctx, tx, name)
			if err != nil {
				return err
			}
			merchant.Slug = value
			return s.repo.Create(ctx, tx, merchant)
		})
		if err == nil || !db.IsDuplicateKeyErr(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(entity, "", string(domain.StatusPendingApproval), metrics.ResultOK)
	s.audit(ctx, "merchant.registered", merchant.ID, map[string]any{"slug": merchant.Slug})
	return toResponse(merchant), nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	merchantID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	merchant, err := s.repo.FindByID(ctx, s.db, merchantID)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, domain.ErrNotFound
	}
	return toResponse(merchant), nil
}

func (s *Service) ListPending(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	var cursor *domain.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Size()
	items, err := s.repo.ListByStatus(ctx, s.db, domain.StatusPendingApproval, cursor, limit)
	if err != nil {
		return domain.ListResponse{}, err
	}

	page, info := pagination.Page(items, limit, func(item domain.Merchant) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	out := make([]domain.Response, 0, len(page))
	for i := range page {
		out = append(out, *toResponse(&page[i]))
	}
	return domain.ListResponse{PageInfo: info, Merchants: out}, nil
}

// Approve activates a pending merchant and provisions its trial
// subscription in the same transaction.
func (s *Service) Approve(ctx context.Context, id string) (*domain.ApprovalResponse, error) {
	merchantID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var (
		merchant *domain.Merchant
		sub      *subscriptiondomain.Subscription
		from     domain.Status
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		merchant, err = s.repo.FindByID(ctx, tx, merchantID)
		if err != nil {
			return err
		}
		if merchant == nil {
			return domain.ErrNotFound
		}
		from = merchant.Status
		if from != domain.StatusPendingApproval {
			return domain.ErrInvalidStateTransition
		}

		applied, err := s.repo.Apply(ctx, tx, merchantID, domain.Transition{
			From:       domain.StatusPendingApproval,
			To:         domain.StatusActive,
			IsActive:   true,
			ApprovedAt: &now,
			At:         now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidStateTransition
		}

		sub, err = s.provisioner.ProvisionTrial(ctx, tx, merchantID, now)
		if err != nil {
			return fmt.Errorf("provision trial: %w", err)
		}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, "merchant.approve_failed", merchantID, from, domain.StatusActive, err)
		return nil, err
	}

	s.metrics.RecordTransition(entity, string(from), string(domain.StatusActive), metrics.ResultOK)
	s.audit(ctx, "merchant.approved", merchantID, map[string]any{
		"subscription_id": sub.ID.String(),
		"trial_end_date":  sub.TrialEndDate,
	})

	merchant.Status = domain.StatusActive
	merchant.IsActive = true
	merchant.ApprovedAt = &now
	merchant.UpdatedAt = now
	return &domain.ApprovalResponse{Merchant: *toResponse(merchant), Subscription: summarize(sub)}, nil
}

func (s *Service) Reject(ctx context.Context, req domain.RejectRequest) (*domain.Response, error) {
	merchantID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)

	now := s.clock.Now()
	var (
		merchant *domain.Merchant
		from     domain.Status
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		merchant, err = s.repo.FindByID(ctx, tx, merchantID)
		if err != nil {
			return err
		}
		if merchant == nil {
			return domain.ErrNotFound
		}
		from = merchant.Status
		if from != domain.StatusPendingApproval {
			return domain.ErrInvalidStateTransition
		}

		applied, err := s.repo.Apply(ctx, tx, merchantID, domain.Transition{
			From:            domain.StatusPendingApproval,
			To:              domain.StatusInactive,
			IsActive:        false,
			RejectedAt:      &now,
			RejectionReason: reason,
			At:              now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidStateTransition
		}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, "merchant.reject_failed", merchantID, from, domain.StatusInactive, err)
		return nil, err
	}

	s.metrics.RecordTransition(entity, string(from), string(domain.StatusInactive), metrics.ResultOK)
	s.audit(ctx, "merchant.rejected", merchantID, map[string]any{"reason": reason})

	merchant.Status = domain.StatusInactive
	merchant.IsActive = false
	merchant.RejectedAt = &now
	merchant.RejectionReason = reason
	merchant.UpdatedAt = now
	return toResponse(merchant), nil
}

// ConfirmApproval approves a pending merchant and succeeds without
// changes when the merchant is already active with a subscription. An
// active merchant missing its subscription gets one provisioned.
func (s *Service) ConfirmApproval(ctx context.Context, id string) (*domain.ApprovalResponse, error) {
	merchantID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, s.db, merchantID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	if current.Status == domain.StatusPendingApproval {
		resp, err := s.Approve(ctx, id)
		// losing a concurrent approval falls through to the no-op path
		if err == nil || !errors.Is(err, domain.ErrInvalidStateTransition) {
			return resp, err
		}
	}

	var (
		merchant *domain.Merchant
		sub      *subscriptiondomain.Subscription
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		merchant, err = s.repo.FindByID(ctx, tx, merchantID)
		if err != nil {
			return err
		}
		if merchant == nil {
			return domain.ErrNotFound
		}
		if merchant.Status != domain.StatusActive {
			return domain.ErrInvalidStateTransition
		}

		sub, err = s.subscriptionRepo.FindByMerchantID(ctx, tx, merchantID)
		if err != nil || sub != nil {
			return err
		}
		sub, err = s.provisioner.ProvisionTrial(ctx, tx, merchantID, s.clock.Now())
		if err != nil {
			return fmt.Errorf("provision trial: %w", err)
		}
		s.log.Warn("active merchant had no subscription; provisioned trial", zap.String("merchant_id", merchantID.String()))
		return nil
	})
	if err != nil {
		if merchant != nil && errors.Is(err, domain.ErrInvalidStateTransition) {
			s.recordFailure(ctx, "merchant.approve_failed", merchantID, merchant.Status, domain.StatusActive, err)
		}
		return nil, err
	}
	return &domain.ApprovalResponse{Merchant: *toResponse(merchant), Subscription: summarize(sub)}, nil
}

func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "merchant"
	}
	taken, err := s.repo.ListSlugs(ctx, tx, base)
	if err != nil {
		return "", err
	}
	used := make(map[string]struct{}, len(taken))
	for _, value := range taken {
		used[value] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, ok := used[candidate]; !ok {
			return candidate, nil
		}
	}
}

func (s *Service) recordFailure(ctx context.Context, action string, id snowflake.ID, from, to domain.Status, err error) {
	result := metrics.ResultError
	if errors.Is(err, domain.ErrInvalidStateTransition) {
		result = metrics.ResultConflict
	}
	s.metrics.RecordTransition(entity, string(from), string(to), result)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	s.log.Warn("merchant transition failed",
		zap.String("merchant_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Error(err),
	)
	s.audit(ctx, action, id, map[string]any{"from": string(from), "reason": err.Error()})
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

func toResponse(m *domain.Merchant) *domain.Response {
	profile := map[string]any(m.Profile)
	if profile == nil {
		profile = map[string]any{}
	}
	return &domain.Response{
		ID:              m.ID.String(),
		Name:            m.Name,
		Slug:            m.Slug,
		Email:           m.Email,
		Phone:           m.Phone,
		Address:         m.Address,
		Status:          m.Status,
		IsActive:        m.IsActive,
		Profile:         profile,
		ApprovedAt:      m.ApprovedAt,
		RejectedAt:      m.RejectedAt,
		RejectionReason: m.RejectionReason,
		CreatedAt:       m.CreatedAt,
	}
}

func summarize(sub *subscriptiondomain.Subscription) *domain.SubscriptionSummary {
	if sub == nil {
		return nil
	}
	return &domain.SubscriptionSummary{
		ID:                 sub.ID.String(),
		Status:             string(sub.Status),
		TrialEndDate:       sub.TrialEndDate,
		TransactionFeeRate: sub.TransactionFeeRate,
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
