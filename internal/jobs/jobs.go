package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// AlertScanner refreshes inventory alerts for every account and reports how
// many alerts were raised.
type AlertScanner interface {
	ScanInventoryAlerts(ctx context.Context) (int, error)
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Scheduler struct {
	sched   *cron.Cron
	scanner AlertScanner
	timeout time.Duration
}

func New(scanner AlertScanner) *Scheduler {
	return &Scheduler{
		sched:   cron.New(cron.WithLocation(time.UTC), cron.WithParser(cronParser)),
		scanner: scanner,
		timeout: 2 * time.Minute,
	}
}

// Start registers the alert scan on schedule and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.sched.AddFunc(schedule, s.RunAlertScan); err != nil {
		return err
	}
	s.sched.Start()
	zap.S().Infow("scheduler started", "alert_schedule", schedule)
	return nil
}

// Stop halts the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.sched.Stop()
}

func (s *Scheduler) RunAlertScan() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Errorw("alert scan panicked", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	startedAt := time.Now()
	count, err := s.scanner.ScanInventoryAlerts(ctx)
	if err != nil {
		zap.S().Errorw("alert scan failed", "error", err)
		return
	}
	zap.S().Infow("alert scan finished", "alerts", count, "duration", time.Since(startedAt))
}
