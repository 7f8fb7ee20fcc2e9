package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// DefaultCleanupSchedule runs retention cleanup daily at 03:00
const DefaultCleanupSchedule = "0 3 * * *"

// ErrCleanupRunning is returned by RunOnce while another run is in progress
var ErrCleanupRunning = errors.New("retention cleanup already running")

// RetentionJob runs CleanupOldLogs on a cron schedule. Overlapping runs are skipped.
type RetentionJob struct {
	recorder *Recorder
	years    int
	schedule string
	timeout  time.Duration
	logger   *observability.Logger

	running atomic.Bool
	cron    *cron.Cron
}

// NewRetentionJob validates the schedule and creates a job
func NewRetentionJob(recorder *Recorder, years int, schedule string, logger *observability.Logger) (*RetentionJob, error) {
	if years < 1 {
		return nil, ErrInvalidRetention
	}
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	return &RetentionJob{
		recorder: recorder,
		years:    years,
		schedule: schedule,
		timeout:  30 * time.Minute,
		logger:   observability.OrNop(logger),
	}, nil
}

// Schedule returns the cron expression
func (j *RetentionJob) Schedule() string {
	return j.schedule
}

// RunOnce performs one cleanup
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	if !j.running.CompareAndSwap(false, true) {
		return 0, ErrCleanupRunning
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.recorder.CleanupOldLogs(ctx, j.years)
}

// Start schedules the job. It returns immediately.
func (j *RetentionJob) Start() error {
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{j.logger}),
		cron.SkipIfStillRunning(cronLogger{j.logger}),
	))
	_, err := c.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.WithError(err).Error("scheduled audit retention cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention cleanup: %w", err)
	}

	j.cron = c
	c.Start()
	j.logger.WithField("schedule", j.schedule).Info("audit retention job started")
	return nil
}

// Stop stops scheduling and waits for a running cleanup or ctx
func (j *RetentionJob) Stop(ctx context.Context) error {
	if j.cron == nil {
		return nil
	}
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
