package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/backoffice/internal/clock"
	obsmetrics "github.com/smallbiznis/backoffice/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/backoffice/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobExpireSubscriptions = "expire_subscriptions"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	Metrics         *obsmetrics.LifecycleMetrics `optional:"true"`
	Config          Config                       `optional:"true"`
}

type job struct {
	name string
	run  func(ctx context.Context, r *jobRun) error
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	metrics         *obsmetrics.LifecycleMetrics
	cron            *cron.Cron
	jobs            []job
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.SubscriptionSvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	log := p.Log.Named("scheduler")
	cl := cronLogger{log: log.Sugar()}

	s := &Scheduler{
		log:             log,
		cfg:             cfg,
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		metrics:         p.Metrics,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	s.jobs = []job{
		{name: JobExpireSubscriptions, run: s.expireSubscriptions},
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("schedule", s.cfg.Schedule))
}

// Stop halts the schedule and waits for a running job or ctx, whichever
// ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs every job once and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs {
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.startRun(ctx, j.name)
	err := j.run(ctx, run)
	s.metrics.RecordJobRun(j.name, s.clock.Now().Sub(start), err)
	s.logFinish(ctx, run, err)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("%s: %w", j.name, err)
}

func (s *Scheduler) expireSubscriptions(ctx context.Context, run *jobRun) error {
	expired, err := s.subscriptionSvc.ExpireDue(ctx)
	run.processed += expired
	return err
}
