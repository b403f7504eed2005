package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/migration"
	"github.com/smallbiznis/backoffice/internal/subscription/domain"
	"github.com/smallbiznis/backoffice/internal/subscription/repository"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var day0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	clk := clock.NewFakeClock(day0)
	svc := New(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		Platform: config.NewStaticPlatformConfig(config.DefaultPlatformConfig()),
	})
	return &fixture{svc: svc, db: conn, clock: clk, node: node}
}

// activeMerchant inserts an ACTIVE merchant and provisions its trial.
func (f *fixture) activeMerchant(t *testing.T, status string) *domain.Subscription {
	t.Helper()
	merchantID := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO merchants (id, name, slug, email, phone, address, status, is_active, rejection_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', '', ?, ?, '', ?, ?)`,
		merchantID, "Shop", "shop-"+merchantID.String(), "shop@example.com", status, status == "ACTIVE", day0, day0,
	).Error
	if err != nil {
		t.Fatalf("insert merchant: %v", err)
	}

	var sub *domain.Subscription
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = f.svc.ProvisionTrial(context.Background(), tx, merchantID, f.clock.Now())
		return err
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	return sub
}

func TestProvisionTrialUsesPlatformDefaults(t *testing.T) {
	f := newFixture(t)
	sub := f.activeMerchant(t, "ACTIVE")

	if sub.Status != domain.StatusActiveTrial {
		t.Fatalf("expected ACTIVE_TRIAL, got %s", sub.Status)
	}
	want := day0.Add(30 * 24 * time.Hour)
	if sub.TrialEndDate == nil || !sub.TrialEndDate.Equal(want) {
		t.Fatalf("expected trial end %s, got %v", want, sub.TrialEndDate)
	}
	if sub.TransactionFeeRate != 0.025 {
		t.Fatalf("expected fee rate 0.025, got %v", sub.TransactionFeeRate)
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ProvisionTrial(context.Background(), tx, sub.MerchantID, day0)
		return err
	})
	if err != domain.ErrAlreadyProvisioned {
		t.Fatalf("expected ErrAlreadyProvisioned, got %v", err)
	}
}

func TestDaysRemainingIsMonotoneAndClamped(t *testing.T) {
	f := newFixture(t)
	sub := f.activeMerchant(t, "ACTIVE")

	prev := 1 << 30
	for hours := 0; hours <= 31*24; hours += 7 {
		now := day0.Add(time.Duration(hours) * time.Hour)
		days := sub.DaysRemaining(now)
		if days == nil {
			t.Fatalf("expected days remaining for trial")
		}
		if *days < 0 {
			t.Fatalf("days remaining negative at +%dh: %d", hours, *days)
		}
		if *days > prev {
			t.Fatalf("days remaining increased at +%dh: %d > %d", hours, *days, prev)
		}
		prev = *days
	}
	if got := *sub.DaysRemaining(day0); got != 30 {
		t.Fatalf("expected 30 days on day 0, got %d", got)
	}
	if got := *sub.DaysRemaining(day0.Add(29*24*time.Hour + time.Minute)); got != 1 {
		t.Fatalf("expected partial day to round up to 1, got %d", got)
	}

	paid := *sub
	paid.Status = domain.StatusActivePaid
	if paid.DaysRemaining(day0) != nil {
		t.Fatalf("expected nil days remaining outside trial")
	}
}

func TestReadsNeverReportPastTrialAsActive(t *testing.T) {
	f := newFixture(t)
	sub := f.activeMerchant(t, "ACTIVE")
	ctx := context.Background()

	resp, err := f.svc.GetByMerchant(ctx, sub.MerchantID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != domain.StatusActiveTrial || !resp.IsActive || !resp.EffectiveIsActive {
		t.Fatalf("expected active trial, got %+v", resp)
	}

	f.clock.Advance(30 * 24 * time.Hour)

	resp, err = f.svc.GetByMerchant(ctx, sub.MerchantID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != domain.StatusExpired {
		t.Fatalf("expected EXPIRED once trial end reached, got %s", resp.Status)
	}
	if resp.IsActive || resp.EffectiveIsActive {
		t.Fatalf("expired subscription must not be active")
	}
	if resp.DaysRemaining != nil {
		t.Fatalf("expected nil days remaining after expiry")
	}

	var stored domain.Subscription
	if err := f.db.First(&stored, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Status != domain.StatusExpired || stored.ExpiredAt == nil {
		t.Fatalf("expected expiry persisted, got %+v", stored)
	}
}

func TestGetByMerchantWithoutSubscriptionIsNil(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.GetByMerchant(context.Background(), f.node.Generate().String())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil subscription, got %+v", resp)
	}

	status, err := f.svc.StatusForMerchant(context.Background(), f.node.Generate().String())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.HasSubscription || status.EffectiveIsActive {
		t.Fatalf("expected empty status, got %+v", status)
	}
}

func TestConvertToPaidClearsTrialEnd(t *testing.T) {
	f := newFixture(t)
	sub := f.activeMerchant(t, "ACTIVE")

	resp, err := f.svc.ConvertToPaid(context.Background(), sub.ID.String())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if resp.Status != domain.StatusActivePaid || resp.TrialEndDate != nil || resp.DaysRemaining != nil {
		t.Fatalf("unexpected paid view: %+v", resp)
	}

	if _, err := f.svc.ConvertToPaid(context.Background(), sub.ID.String()); err != domain.ErrInvalidStateTransition {
		t.Fatalf("expected ErrInvalidStateTransition on second convert, got %v", err)
	}
}

func TestConvertDueTrialFails(t *testing.T) {
	f := newFixture(t)
	sub := f.activeMerchant(t, "ACTIVE")
	f.clock.Advance(31 * 24 * time.Hour)

	if _, err := f.svc.ConvertToPaid(context.Background(), sub.ID.String()); err != domain.ErrInvalidStateTransition {
		t.Fatalf("expected ErrInvalidStateTransition for expired trial, got %v", err)
	}
}

func TestReactivationYieldsActive(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(t *testing.T, f *fixture, sub *domain.Subscription)
		target domain.Status
		days   *int
	}{
		{
			name: "expired to trial with default days",
			setup: func(t *testing.T, f *fixture, sub *domain.Subscription) {
				f.clock.Advance(31 * 24 * time.Hour)
				if _, err := f.svc.ExpireDue(context.Background()); err != nil {
					t.Fatalf("expire: %v", err)
				}
			},
			target: domain.StatusActiveTrial,
		},
		{
			name: "cancelled to paid",
			setup: func(t *testing.T, f *fixture, sub *domain.Subscription) {
				if _, err := f.svc.Cancel(context.Background(), sub.ID.String()); err != nil {
					t.Fatalf("cancel: %v", err)
				}
			},
			target: domain.StatusActivePaid,
		},
		{
			name: "cancelled to trial with custom days",
			setup: func(t *testing.T, f *fixture, sub *domain.Subscription) {
				if _, err := f.svc.Cancel(context.Background(), sub.ID.String()); err != nil {
					t.Fatalf("cancel: %v", err)
				}
			},
			target: domain.StatusActiveTrial,
			days:   intPtr(14),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			sub := f.activeMerchant(t, "ACTIVE")
			tc.setup(t, f, sub)

			resp, err := f.svc.Reactivate(context.Background(), domain.ReactivateRequest{
				ID:        sub.ID.String(),
				Target:    tc.target,
				TrialDays: tc.days,
			})
			if err != nil {
				t.Fatalf("reactivate: %v", err)
			}
			if !resp.IsActive || resp.Status != tc.target {
				t.Fatalf("expected active %s, got %+v", tc.target, resp)
			}

			switch tc.target {
			case domain.StatusActiveTrial:
				days := 30
				if tc.days != nil {
					days = *tc.days
				}
				want := f.clock.Now().Add(time.Duration(days) * 24 * time.Hour)
				if resp.TrialEndDate == nil || !resp.TrialEndDate.Equal(want) {
					t.Fatalf("expected fresh trial end %s, got %v", want, resp.TrialEndDate)
				}
			case domain.StatusActivePaid:
				if resp.TrialEndDate != nil {
					t.Fatalf("paid subscription must not carry a trial end date")
				}
			}
		})
	}
}

func TestReactivateRejectsActiveAndInactiveMerchant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.activeMerchant(t, "ACTIVE")
	if _, err := f.svc.Reactivate(ctx, domain.ReactivateRequest{ID: active.ID.String(), Target: domain.StatusActivePaid}); err != domain.ErrInvalidStateTransition {
		t.Fatalf("expected ErrInvalidStateTransition for active trial, got %v", err)
	}

	deactivated := f.activeMerchant(t, "INACTIVE")
	if _, err := f.svc.Cancel(ctx, deactivated.ID.String()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Reactivate(ctx, domain.ReactivateRequest{ID: deactivated.ID.String(), Target: domain.StatusActiveTrial}); err != domain.ErrMerchantNotActive {
		t.Fatalf("expected ErrMerchantNotActive, got %v", err)
	}

	resp, err := f.svc.Get(ctx, deactivated.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != domain.StatusCancelled {
		t.Fatalf("failed reactivation must leave state unchanged, got %s", resp.Status)
	}

	if _, err := f.svc.Reactivate(ctx, domain.ReactivateRequest{ID: deactivated.ID.String(), Target: domain.StatusExpired}); err != domain.ErrInvalidTarget {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if _, err := f.svc.Reactivate(ctx, domain.ReactivateRequest{ID: deactivated.ID.String(), Target: domain.StatusActivePaid, TrialDays: intPtr(5)}); err != domain.ErrInvalidTrialDays {
		t.Fatalf("expected ErrInvalidTrialDays, got %v", err)
	}
}

func TestConcurrentReactivateHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeMerchant(t, "ACTIVE")
	if _, err := f.svc.Cancel(ctx, sub.ID.String()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		conflict int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reactivate(ctx, domain.ReactivateRequest{ID: sub.ID.String(), Target: domain.StatusActivePaid})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInvalidStateTransition):
				conflict++
			default:
				t.Errorf("unexpected reactivate error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflict != callers-1 {
		t.Fatalf("expected one winner and %d conflicts, got %d and %d", callers-1, ok, conflict)
	}

	var count int64
	if err := f.db.Model(&domain.Subscription{}).Where("merchant_id = ?", sub.MerchantID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one subscription row, got %d", count)
	}
	resp, err := f.svc.Get(ctx, sub.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != domain.StatusActivePaid {
		t.Fatalf("expected ACTIVE_PAID, got %s", resp.Status)
	}
}

func TestEffectiveIsActiveFollowsMerchantStatus(t *testing.T) {
	f := newFixture(t)
	sub := f.activeMerchant(t, "INACTIVE")

	resp, err := f.svc.Get(context.Background(), sub.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !resp.IsActive {
		t.Fatalf("expected trial to be active on its own")
	}
	if resp.EffectiveIsActive {
		t.Fatalf("expected effective state to follow the inactive merchant")
	}
}

func TestExpireDueSweepsOnlyDueTrials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.activeMerchant(t, "ACTIVE")
	paid := f.activeMerchant(t, "ACTIVE")
	if _, err := f.svc.ConvertToPaid(ctx, paid.ID.String()); err != nil {
		t.Fatalf("convert: %v", err)
	}
	f.clock.Advance(10 * 24 * time.Hour)
	fresh := f.activeMerchant(t, "ACTIVE")

	f.clock.Advance(21 * 24 * time.Hour)
	expired, err := f.svc.ExpireDue(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expiry, got %d", expired)
	}

	for id, want := range map[snowflake.ID]domain.Status{
		due.ID:   domain.StatusExpired,
		paid.ID:  domain.StatusActivePaid,
		fresh.ID: domain.StatusActiveTrial,
	} {
		var stored domain.Subscription
		if err := f.db.First(&stored, "id = ?", id).Error; err != nil {
			t.Fatalf("load: %v", err)
		}
		if stored.Status != want {
			t.Fatalf("subscription %s: expected %s, got %s", id, want, stored.Status)
		}
	}

	again, err := f.svc.ExpireDue(ctx)
	if err != nil || again != 0 {
		t.Fatalf("expected idempotent sweep, got %d, %v", again, err)
	}
}

func TestTransitionTable(t *testing.T) {
	all := []domain.Status{domain.StatusActiveTrial, domain.StatusActivePaid, domain.StatusExpired, domain.StatusCancelled}
	allowed := map[[2]domain.Status]bool{
		{domain.StatusActiveTrial, domain.StatusActivePaid}:  true,
		{domain.StatusActiveTrial, domain.StatusCancelled}:   true,
		{domain.StatusActivePaid, domain.StatusCancelled}:    true,
		{domain.StatusExpired, domain.StatusCancelled}:       true,
		{domain.StatusExpired, domain.StatusActiveTrial}:     true,
		{domain.StatusExpired, domain.StatusActivePaid}:      true,
		{domain.StatusCancelled, domain.StatusActiveTrial}:   true,
		{domain.StatusCancelled, domain.StatusActivePaid}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := isTransitionAllowed(from, to); got != allowed[[2]domain.Status{from, to}] {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, !got, got)
			}
		}
	}
}

func intPtr(v int) *int { return &v }
