package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/audit/repository"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/migration"
	obscontext "github.com/smallbiznis/backoffice/internal/observability/context"
	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	return NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}), clk
}

func TestRecordCapturesActorAndCorrelation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithActor(context.Background(), "77")
	ctx = obscontext.WithCorrelationID(ctx, "corr-abc")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     "merchant.approved",
		TargetType: "merchant",
		TargetID:   "10",
		Metadata:   map[string]any{"from": "PENDING_APPROVAL"},
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListRequest{TargetType: "merchant", TargetID: "10"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, auditdomain.ActorTypeUser, entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
	assert.Equal(t, "corr-abc", entry.CorrelationID)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, "PENDING_APPROVAL", entry.Metadata["from"])
}

func TestRecordWithoutActorIsSystem(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{Action: "subscription.expired", TargetType: "subscription", TargetID: "5"}))

	resp, err := svc.List(context.Background(), auditdomain.ListRequest{Action: "subscription.expired"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActorTypeSystem, resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
	assert.NotEmpty(t, resp.AuditLogs[0].CorrelationID)
}

func TestRecordRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.Record(context.Background(), auditdomain.Entry{}), auditdomain.ErrInvalidAction)
}

func TestListPaginates(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: "role.updated", TargetType: "role", TargetID: "1"}))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, auditdomain.ListRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.True(t, second.AuditLogs[0].CreatedAt.Before(first.AuditLogs[1].CreatedAt))

	_, err = svc.List(ctx, auditdomain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestListFiltersByActorAndWindow(t *testing.T) {
	svc, clk := newTestService(t)
	start := clk.Now()

	alice := obscontext.WithActor(context.Background(), "101")
	bob := obscontext.WithActor(context.Background(), "202")
	require.NoError(t, svc.Record(alice, auditdomain.Entry{Action: "role.updated", TargetType: "role", TargetID: "1"}))
	clk.Advance(time.Hour)
	require.NoError(t, svc.Record(bob, auditdomain.Entry{Action: "role.updated", TargetType: "role", TargetID: "1"}))
	clk.Advance(time.Hour)
	require.NoError(t, svc.Record(alice, auditdomain.Entry{Action: "role.deleted", TargetType: "role", TargetID: "1"}))

	ctx := context.Background()
	byActor, err := svc.List(ctx, auditdomain.ListRequest{ActorID: "101"})
	require.NoError(t, err)
	require.Len(t, byActor.AuditLogs, 2)
	assert.Equal(t, "role.deleted", byActor.AuditLogs[0].Action)

	window, err := svc.List(ctx, auditdomain.ListRequest{
		Since: start.Add(30 * time.Minute),
		Until: start.Add(90 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, window.AuditLogs, 1)
	require.NotNil(t, window.AuditLogs[0].ActorID)
	assert.Equal(t, "202", *window.AuditLogs[0].ActorID)

	_, err = svc.List(ctx, auditdomain.ListRequest{Since: start, Until: start})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
