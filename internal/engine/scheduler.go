package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"taskline/internal/domain"
)

// Scheduler tops up recurring patterns on a cron cadence. Each firing
// generates at most one new instance per pattern, and only when the last
// generation is at least one pattern period old, so restarts and overlapping
// firings never duplicate work.
type Scheduler struct {
	engine Engine
	cron   *cron.Cron
	log    *zap.Logger
}

// cronLogger adapts zap.Logger to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// StartScheduler runs the recurrence top-up job on the configured cron spec
// (six fields, seconds first). Returns nil without error when the scheduler
// is disabled in config.
func StartScheduler(e Engine, logger *zap.Logger) (*Scheduler, error) {
	if e.Config == nil || !e.Config.Scheduler.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		engine: e,
		log:    logger,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(&cronLogger{logger: logger.Named("cron")})),
		),
	}
	spec := e.Config.Scheduler.Cron
	if _, err := s.cron.AddFunc(spec, s.topUp); err != nil {
		return nil, fmt.Errorf("invalid scheduler cron %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("cron", spec))
	return s, nil
}

// Stop halts the cron loop and waits for a running job to finish. Safe on a
// nil scheduler.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) topUp() {
	ctx := context.Background()
	patterns, err := s.engine.Repo.ListPatterns(ctx)
	if err != nil {
		s.log.Error("scheduler: list patterns failed", zap.Error(err))
		return
	}
	now := s.engine.now().UTC()
	today := now.Format(dateLayout)
	for _, p := range patterns {
		if p.EndDate != nil && *p.EndDate < today {
			continue
		}
		due, err := s.generationDue(ctx, p, now)
		if err != nil {
			s.log.Error("scheduler: pattern check failed", zap.Int64("pattern_id", p.ID), zap.Error(err))
			continue
		}
		if !due {
			continue
		}
		tasks, err := s.engine.GenerateInstances(ctx, p.ID, 1, "scheduler")
		if err != nil {
			s.log.Error("scheduler: generate failed", zap.Int64("pattern_id", p.ID), zap.Error(err))
			continue
		}
		s.log.Info("scheduler: generated instances",
			zap.Int64("pattern_id", p.ID),
			zap.Int("count", len(tasks)))
	}
}

// generationDue reports whether the pattern's latest generation event is at
// least one period old. A pattern never generated is due immediately.
func (s *Scheduler) generationDue(ctx context.Context, p domain.RecurringPattern, now time.Time) (bool, error) {
	evts, err := s.engine.Repo.LatestEvents(ctx, 1, "pattern.generated", "pattern", strconv.FormatInt(p.ID, 10))
	if err != nil {
		return false, err
	}
	if len(evts) == 0 {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339, evts[0].TS)
	if err != nil {
		return true, nil
	}
	var next time.Time
	switch p.Frequency {
	case "daily":
		next = last.AddDate(0, 0, p.Interval)
	case "weekly":
		next = last.AddDate(0, 0, 7*p.Interval)
	case "monthly":
		next = addMonths(last, p.Interval)
	default:
		return false, nil
	}
	return !now.Before(next), nil
}
