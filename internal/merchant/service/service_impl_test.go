package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/merchant/domain"
	"github.com/smallbiznis/backoffice/internal/merchant/repository"
	"github.com/smallbiznis/backoffice/internal/migration"
	subscriptiondomain "github.com/smallbiznis/backoffice/internal/subscription/domain"
	"github.com/smallbiznis/backoffice/internal/subscription/domain/mocks"
	subscriptionrepository "github.com/smallbiznis/backoffice/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/backoffice/internal/subscription/service"
	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var approvedAt = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	audit *recordingAudit
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, entry auditdomain.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, entry.Action)
	return nil
}

func (a *recordingAudit) List(context.Context, auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	return auditdomain.ListResponse{}, nil
}

func (a *recordingAudit) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, recorded := range a.actions {
		if recorded == action {
			n++
		}
	}
	return n
}

func newFixture(t *testing.T, provisioner subscriptiondomain.Provisioner) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	clk := clock.NewFakeClock(approvedAt)
	subRepo := subscriptionrepository.Provide()
	if provisioner == nil {
		provisioner = subscriptionservice.New(subscriptionservice.Params{
			DB:       conn,
			Log:      zap.NewNop(),
			GenID:    node,
			Clock:    clk,
			Repo:     subRepo,
			Platform: config.NewStaticPlatformConfig(config.DefaultPlatformConfig()),
		})
	}
	audit := &recordingAudit{}
	svc := New(Params{
		DB:               conn,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            clk,
		Repo:             repository.Provide(),
		Provisioner:      provisioner,
		SubscriptionRepo: subRepo,
		AuditSvc:         audit,
	})
	return &fixture{svc: svc, db: conn, clock: clk, audit: audit}
}

func (f *fixture) register(t *testing.T, name string) *domain.Response {
	t.Helper()
	resp, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		Name:  name,
		Email: "owner@example.com",
		Profile: map[string]any{
			"category": "retail",
		},
	})
	if err != nil {
		t.Fatalf("register %q: %v", name, err)
	}
	return resp
}

func (f *fixture) subscriptionCount(t *testing.T, merchantID string) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&subscriptiondomain.Subscription{}).Where("merchant_id = ?", merchantID).Count(&count).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	return count
}

func TestRegisterStartsPendingWithUniqueSlug(t *testing.T) {
	f := newFixture(t, nil)

	first := f.register(t, "Kopi Kenangan")
	second := f.register(t, "Kopi  Kenangan!")
	third := f.register(t, "kopi kenangan")

	assert.Equal(t, domain.StatusPendingApproval, first.Status)
	assert.False(t, first.IsActive)
	assert.Equal(t, "retail", first.Profile["category"])
	assert.Equal(t, "kopi-kenangan", first.Slug)
	assert.Equal(t, "kopi-kenangan-2", second.Slug)
	assert.Equal(t, "kopi-kenangan-3", third.Slug)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, domain.RegisterRequest{Name: "  ", Email: "a@example.com"}); err != domain.ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := f.svc.Register(ctx, domain.RegisterRequest{Name: "Shop", Email: "not-an-email"}); err != domain.ErrInvalidEmail {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestApproveProvisionsExactlyOneTrial(t *testing.T) {
	f := newFixture(t, nil)
	merchant := f.register(t, "Toko Maju")

	resp, err := f.svc.Approve(context.Background(), merchant.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusActive, resp.Merchant.Status)
	assert.True(t, resp.Merchant.IsActive)
	require.NotNil(t, resp.Merchant.ApprovedAt)
	require.NotNil(t, resp.Subscription)
	assert.Equal(t, string(subscriptiondomain.StatusActiveTrial), resp.Subscription.Status)
	require.NotNil(t, resp.Subscription.TrialEndDate)
	assert.True(t, resp.Subscription.TrialEndDate.Equal(approvedAt.Add(30*24*time.Hour)))
	assert.Equal(t, 0.025, resp.Subscription.TransactionFeeRate)
	assert.EqualValues(t, 1, f.subscriptionCount(t, merchant.ID))

	stored, err := f.svc.Get(context.Background(), merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
}

func TestApproveIsStrict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	merchant := f.register(t, "Warung Sate")

	_, err := f.svc.Approve(ctx, merchant.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, merchant.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = f.svc.Reject(ctx, domain.RejectRequest{ID: merchant.ID, Reason: "late"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	assert.EqualValues(t, 1, f.subscriptionCount(t, merchant.ID))
}

func TestRejectIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	merchant := f.register(t, "Bakso Pak Min")

	resp, err := f.svc.Reject(ctx, domain.RejectRequest{ID: merchant.ID, Reason: " incomplete documents "})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, resp.Status)
	assert.Equal(t, "incomplete documents", resp.RejectionReason)
	assert.NotNil(t, resp.RejectedAt)

	_, err = f.svc.Approve(ctx, merchant.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = f.svc.ConfirmApproval(ctx, merchant.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.EqualValues(t, 0, f.subscriptionCount(t, merchant.ID))
}

func TestConfirmApprovalIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	merchant := f.register(t, "Roti Bakar 88")

	first, err := f.svc.ConfirmApproval(ctx, merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, first.Subscription)

	f.clock.Advance(time.Hour)
	second, err := f.svc.ConfirmApproval(ctx, merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, second.Subscription)

	assert.Equal(t, first.Subscription.ID, second.Subscription.ID)
	assert.Equal(t, domain.StatusActive, second.Merchant.Status)
	assert.EqualValues(t, 1, f.subscriptionCount(t, merchant.ID))
	assert.Equal(t, 1, f.audit.count("merchant.approved"))
	assert.Zero(t, f.audit.count("merchant.approve_failed"), "confirming an active merchant is not a failure")
}

func TestConfirmApprovalOfRejectedMerchantIsRecorded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	merchant := f.register(t, "Soto Betawi")

	_, err := f.svc.Reject(ctx, domain.RejectRequest{ID: merchant.ID, Reason: "duplicate"})
	require.NoError(t, err)

	_, err = f.svc.ConfirmApproval(ctx, merchant.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, 1, f.audit.count("merchant.approve_failed"))
}

func TestConcurrentApproveHasOneWinner(t *testing.T) {
	f := newFixture(t, nil)
	merchant := f.register(t, "Martabak Manis")

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		conflict int
		other    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Approve(context.Background(), merchant.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInvalidStateTransition):
				conflict++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, conflict)
	assert.EqualValues(t, 1, f.subscriptionCount(t, merchant.ID))
}

func TestConfirmApprovalRepairsMissingSubscription(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	merchant := f.register(t, "Es Teh Manis")

	_, err := f.svc.Approve(ctx, merchant.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`DELETE FROM subscriptions WHERE merchant_id = ?`, merchant.ID).Error)

	resp, err := f.svc.ConfirmApproval(ctx, merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, resp.Subscription)
	assert.Equal(t, string(subscriptiondomain.StatusActiveTrial), resp.Subscription.Status)
	assert.EqualValues(t, 1, f.subscriptionCount(t, merchant.ID))
}

func TestApproveRollsBackWhenProvisioningFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provisioner := mocks.NewMockProvisioner(ctrl)
	provisioner.EXPECT().
		ProvisionTrial(gomock.Any(), gomock.Any(), gomock.Any(), approvedAt).
		Return(nil, errors.New("connection reset"))

	f := newFixture(t, provisioner)
	merchant := f.register(t, "Nasi Uduk")

	_, err := f.svc.Approve(context.Background(), merchant.ID)
	if err == nil {
		t.Fatalf("expected provisioning error")
	}

	stored, err := f.svc.Get(context.Background(), merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingApproval, stored.Status)
	assert.False(t, stored.IsActive)
	assert.Nil(t, stored.ApprovedAt)
}

func TestListPendingPaginates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"Alpha", "Bravo", "Charlie", "Delta"} {
		ids = append(ids, f.register(t, name).ID)
		f.clock.Advance(time.Minute)
	}
	_, err := f.svc.Approve(ctx, ids[1])
	require.NoError(t, err)

	page, err := f.svc.ListPending(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Merchants, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	next, err := f.svc.ListPending(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, next.Merchants, 1)
	assert.False(t, next.HasMore)

	seen := map[string]bool{}
	for _, m := range append(page.Merchants, next.Merchants...) {
		assert.Equal(t, domain.StatusPendingApproval, m.Status)
		seen[m.ID] = true
	}
	assert.Len(t, seen, 3)
	assert.False(t, seen[ids[1]])

	_, err = f.svc.ListPending(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
