package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/backoffice/internal/observability/context"
	obslogger "github.com/smallbiznis/backoffice/internal/observability/logger"
	"go.uber.org/zap"
)

const systemActor = "system:scheduler"

type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	processed int
}

func (s *Scheduler) startRun(ctx context.Context, job string) (context.Context, *jobRun) {
	ctx, runID := obscontext.EnsureCorrelationID(ctx)
	ctx = obscontext.WithActor(ctx, systemActor)
	return ctx, &jobRun{job: job, runID: runID, startedAt: s.clock.Now()}
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logFinish(ctx context.Context, run *jobRun, err error) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("processed", run.processed),
		zap.Duration("duration", s.clock.Now().Sub(run.startedAt)),
	}
	if err != nil {
		s.logger(ctx).Warn("job failed", append(fields, zap.Error(err))...)
		return
	}
	if run.processed > 0 {
		s.logger(ctx).Info("job finished", fields...)
		return
	}
	s.logger(ctx).Debug("job finished", fields...)
}

// cronLogger routes robfig/cron's internal logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
