package dirty

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/haroldsh/fulcrum/internal/metrics"
)

// StorageManagerConfig is the owning process's persistence policy (spec
// §4.G G2): whether dirty tracking runs at all, the time-based flush
// period, and which of the two persistence modes are active. When both
// are enabled the dirty-data manager must not run its own timer — the
// storage manager owns the single periodic flush.
type StorageManagerConfig struct {
	DirtyTrackingEnabled  bool
	PersistenceInterval   time.Duration // default 5 minutes
	EventBasedPersistence bool
	TimeBasedPersistence  bool
}

// DefaultStorageManagerConfig matches the spec's stated defaults.
func DefaultStorageManagerConfig() StorageManagerConfig {
	return StorageManagerConfig{
		DirtyTrackingEnabled:  true,
		PersistenceInterval:   5 * time.Minute,
		EventBasedPersistence: true,
		TimeBasedPersistence:  true,
	}
}

// StorageManager coordinates a Manager's flush calls: a cron-scheduled
// time-based sweep of every player, and/or a debounced event-based
// flush triggered per player as their data changes.
type StorageManager struct {
	cfg     StorageManagerConfig
	manager *Manager
	pool    *WorkerPool
	log     *logrus.Entry

	cronSched *cron.Cron
	metrics   *metrics.Metrics

	debounceMu sync.Mutex
	lastFlush  map[string]time.Time
	debounce   time.Duration
}

// NewStorageManager wires a Manager to a cron schedule and/or debounced
// event triggers per cfg. debounceOverride, when non-zero, replaces the
// computed min(30s, interval/10) debounce window (spec §4.G G2).
func NewStorageManager(cfg StorageManagerConfig, manager *Manager, pool *WorkerPool, log *logrus.Entry, debounceOverride time.Duration) *StorageManager {
	debounce := debounceOverride
	if debounce <= 0 {
		debounce = cfg.PersistenceInterval / 10
		if debounce > 30*time.Second || debounce <= 0 {
			debounce = 30 * time.Second
		}
	}

	return &StorageManager{
		cfg:       cfg,
		manager:   manager,
		pool:      pool,
		log:       log,
		metrics:   metrics.Global(),
		lastFlush: make(map[string]time.Time),
		debounce:  debounce,
	}
}

// Start begins the time-based cron sweep if configured. The dirty-data
// manager itself never schedules its own timer; only the storage
// manager does, so there is exactly one periodic flush in the process.
func (s *StorageManager) Start(ctx context.Context) {
	if !s.cfg.DirtyTrackingEnabled || !s.cfg.TimeBasedPersistence {
		return
	}

	s.cronSched = cron.New(cron.WithSeconds())
	spec := "@every " + s.cfg.PersistenceInterval.String()
	_, err := s.cronSched.AddFunc(spec, func() {
		start := time.Now()
		n, err := s.manager.PersistAllDirtyData(ctx)
		if err != nil {
			s.metrics.RecordDirtyFlush("time", "error", time.Since(start))
			s.log.WithError(err).Warn("time-based dirty flush failed")
			return
		}
		s.metrics.RecordDirtyFlush("time", "ok", time.Since(start))
		if n > 0 {
			s.log.WithField("count", n).Debug("time-based dirty flush complete")
		}
	})
	if err != nil {
		s.log.WithError(err).Error("failed to schedule time-based persistence")
		return
	}
	s.cronSched.Start()
}

// Stop halts the cron schedule, if running.
func (s *StorageManager) Stop() {
	if s.cronSched != nil {
		ctx := s.cronSched.Stop()
		<-ctx.Done()
	}
}

// NotifyDirty is the event-based entry point: call after MarkDirty for a
// player to request a flush, subject to per-player debouncing so a hot
// player isn't written to the backend on every single field change.
func (s *StorageManager) NotifyDirty(ctx context.Context, player string) {
	if !s.cfg.DirtyTrackingEnabled || !s.cfg.EventBasedPersistence {
		return
	}

	s.debounceMu.Lock()
	last, ok := s.lastFlush[player]
	now := time.Now()
	if ok && now.Sub(last) < s.debounce {
		s.debounceMu.Unlock()
		return
	}
	s.lastFlush[player] = now
	s.debounceMu.Unlock()

	start := time.Now()
	result := s.manager.PersistDirtyDataAsync(ctx, s.pool, player)
	go func() {
		r := <-result
		status := "ok"
		if r.Err != nil {
			status = "error"
		}
		s.metrics.RecordDirtyFlush("event", status, time.Since(start))
	}()
}
