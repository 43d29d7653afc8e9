package coord

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/abelbrown/discover/internal/logging"
	"github.com/abelbrown/discover/internal/model"
	"github.com/abelbrown/discover/internal/otel"
)

// Maintenance is the persistent side of a sweep: purging expired rows and
// saving source health so backoff survives restarts.
type Maintenance interface {
	DeleteExpired() (int64, error)
	SaveSourceStates(sources []model.SourceDescriptor) error
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Evicted int
	Purged  int64
}

type sweeper struct {
	scheduler gocron.Scheduler
	maint     Maintenance
}

// Sweep evicts expired cache entries, trims the cache to capacity and runs
// m (which may be nil). Errors from m are logged.
func (o *Orchestrator) Sweep(m Maintenance) SweepResult {
	var res SweepResult
	res.Evicted = o.cache.EvictExpired() + o.cache.EvictToCapacity()

	if m != nil {
		n, err := m.DeleteExpired()
		if err != nil {
			logging.Warn("coord: purge expired rows", "error", err)
			o.events.Error(otel.KindCacheError, "coord", err)
		}
		res.Purged = n
		if err := m.SaveSourceStates(o.sel.Sources()); err != nil {
			logging.Warn("coord: save source states", "error", err)
		}
	}

	o.events.Emit(otel.Event{
		Kind: otel.KindCacheSweep, Comp: "coord", Count: res.Evicted,
		Extra: map[string]any{"purged": res.Purged},
	})
	return res
}

// Start schedules Sweep every interval until Stop.
func (o *Orchestrator) Start(interval time.Duration, m Maintenance) error {
	if interval <= 0 {
		return fmt.Errorf("coord: sweep interval must be positive, got %v", interval)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sweeper != nil {
		return errors.New("coord: sweeper already running")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create sweep scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { o.Sweep(m) }),
		gocron.WithName("cache-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("create sweep job: %w", err)
	}
	s.Start()

	o.sweeper = &sweeper{scheduler: s, maint: m}
	logging.Info("coord: sweeper started", "interval", interval)
	return nil
}

// Stop shuts the sweeper down and saves source states one last time.
// Safe to call when Start was never called.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	sw := o.sweeper
	o.sweeper = nil
	o.mu.Unlock()

	if sw == nil {
		return nil
	}
	err := sw.scheduler.Shutdown()
	if sw.maint != nil {
		if serr := sw.maint.SaveSourceStates(o.sel.Sources()); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	if err != nil {
		return fmt.Errorf("stop sweeper: %w", err)
	}
	return nil
}
