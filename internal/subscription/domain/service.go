package domain

import (
	"context"
	"errors"
	"time"

)

type Service interface {
	Provisioner

	Get(ctx context.Context, id string) (*Response, error)
	// GetByMerchant returns nil without error when the merchant has no
	// subscription.
	GetByMerchant(ctx context.Context, merchantID string) (*Response, error)
	StatusForMerchant(ctx context.Context, merchantID string) (*StatusResponse, error)

	ConvertToPaid(ctx context.Context, id string) (*Response, error)
	Cancel(ctx context.Context, id string) (*Response, error)
	Reactivate(ctx context.Context, req ReactivateRequest) (*Response, error)

	// ExpireDue moves every trial past its end date to EXPIRED.
	ExpireDue(ctx context.Context) (int, error)
}

type ReactivateRequest struct {
	ID        string `json:"-"`
	Target    Status `json:"target"`
	TrialDays *int   `json:"trialDays,omitempty"`
}

type Response struct {
	ID                 string     `json:"id"`
	MerchantID         string     `json:"merchantId"`
	Status             Status     `json:"status"`
	TrialEndDate       *time.Time `json:"trialEndDate"`
	TransactionFeeRate float64    `json:"transactionFeeRate"`
	IsActive           bool       `json:"isActive"`
	DaysRemaining      *int       `json:"daysRemaining"`
	EffectiveIsActive  bool       `json:"effectiveIsActive"`
	MerchantStatus     string     `json:"merchantStatus"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// StatusResponse is the caller-scoped subscription summary.
type StatusResponse struct {
	HasSubscription   bool       `json:"hasSubscription"`
	Status            Status     `json:"status,omitempty"`
	IsActive          bool       `json:"isActive"`
	EffectiveIsActive bool       `json:"effectiveIsActive"`
	DaysRemaining     *int       `json:"daysRemaining"`
	TrialEndDate      *time.Time `json:"trialEndDate"`
}

var (
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidTarget          = errors.New("invalid_target_status")
	ErrInvalidTrialDays       = errors.New("invalid_trial_days")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	ErrMerchantNotActive      = errors.New("merchant_not_active")
	ErrAlreadyProvisioned     = errors.New("subscription_already_exists")
	ErrNotFound               = errors.New("subscription_not_found")
)
