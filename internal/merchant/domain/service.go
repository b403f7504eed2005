package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/backoffice/pkg/db/pagination"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	ListPending(ctx context.Context, req ListRequest) (ListResponse, error)

	// Approve and Reject are strict: they fail with
	// ErrInvalidStateTransition unless the merchant is PENDING_APPROVAL.
	Approve(ctx context.Context, id string) (*ApprovalResponse, error)
	Reject(ctx context.Context, req RejectRequest) (*Response, error)
	// ConfirmApproval is the retry-safe form of Approve.
	ConfirmApproval(ctx context.Context, id string) (*ApprovalResponse, error)
}

type RegisterRequest struct {
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone"`
	Address string         `json:"address"`
	Profile map[string]any `json:"profile"`
}

type RejectRequest struct {
	ID     string `json:"-"`
	Reason string `json:"reason"`
}

type ListRequest struct {
	pagination.Pagination
}

type Response struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Slug            string         `json:"slug"`
	Email           string         `json:"email"`
	Phone           string         `json:"phone"`
	Address         string         `json:"address"`
	Status          Status         `json:"status"`
	IsActive        bool           `json:"isActive"`
	Profile         map[string]any `json:"profile"`
	ApprovedAt      *time.Time     `json:"approvedAt"`
	RejectedAt      *time.Time     `json:"rejectedAt"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

type SubscriptionSummary struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	TrialEndDate       *time.Time `json:"trialEndDate"`
	TransactionFeeRate float64    `json:"transactionFeeRate"`
}

type ApprovalResponse struct {
	Merchant     Response             `json:"merchant"`
	Subscription *SubscriptionSummary `json:"subscription"`
}

type ListResponse struct {
	pagination.PageInfo
	Merchants []Response `json:"merchants"`
}

var (
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidName            = errors.New("invalid_name")
	ErrInvalidEmail           = errors.New("invalid_email")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	ErrNotFound               = errors.New("merchant_not_found")
)
