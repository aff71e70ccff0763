package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsDigest/internal/ports"
	"NewsDigest/pkg/logger"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// CronScheduler fires a job on a 5-field cron expression. Overlapping firings
// are skipped and panics inside the job are recovered.
type CronScheduler struct {
	spec     string
	location *time.Location
	log      *logger.Bridge

	mu    sync.Mutex
	cron  *cron.Cron
	stop  chan struct{}
	watch sync.WaitGroup
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates the cron expression and binds the timezone.
func NewCronScheduler(spec string, loc *time.Location, log *slog.Logger) (*CronScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{
		spec:     spec,
		location: loc,
		log:      logger.New(log, "scheduler.cron"),
	}, nil
}

// Start registers job and starts the cron loop. The loop stops when ctx is done.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler job is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return ErrAlreadyStarted
	}

	cr := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(c.log),
		cron.WithChain(cron.SkipIfStillRunning(c.log), cron.Recover(c.log)),
	)
	if _, err := cr.AddFunc(c.spec, func() { job(time.Now().In(c.location)) }); err != nil {
		return fmt.Errorf("register cron job: %w", err)
	}
	cr.Start()
	stop := make(chan struct{})
	c.cron, c.stop = cr, stop

	c.watch.Go(func() {
		select {
		case <-stop:
			return
		case <-ctx.Done():
		}
		c.mu.Lock()
		if c.cron != cr {
			c.mu.Unlock()
			return
		}
		c.cron, c.stop = nil, nil
		close(stop)
		c.mu.Unlock()
		<-cr.Stop().Done()
	})

	return nil
}

// Next returns the next planned firing, zero when not started.
func (c *CronScheduler) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return time.Time{}
	}
	entries := c.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts the cron loop and waits for a running job until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr, stop := c.cron, c.stop
	c.cron, c.stop = nil, nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}
	close(stop)

	done := cr.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
