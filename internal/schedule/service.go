package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"querybell/internal/storage"
	"querybell/internal/workload"
	logx "querybell/pkg/logx"
)

// flagSweep throttles reconcile sweeps across invocations.
const flagSweep = "schedule_sweep"

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ; empty means local
	// EnsureInterval is the minimum gap between reconcile sweeps.
	EnsureInterval time.Duration
}

// RunFunc executes a workload when its trigger fires.
type RunFunc func(ctx context.Context, id string)

type entry struct {
	id   cron.EntryID
	spec string
}

// Service owns the cron instance and the per-workload trigger entries.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	store   *workload.Store
	flags   *storage.Store
	run     RunFunc
	loc     *time.Location
	c       *cron.Cron
	entries map[string]entry

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, store *workload.Store, flags *storage.Store, run RunFunc, log logx.Logger) *Service {
	if cfg.EnsureInterval <= 0 {
		cfg.EnsureInterval = time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		store:   store,
		flags:   flags,
		run:     run,
		entries: map[string]entry{},
	}
}

// Location returns the trigger timezone.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locLocked()
}

func (s *Service) locLocked() *time.Location {
	if s.loc != nil {
		return s.loc
	}
	loc := time.Local
	if tz := s.cfg.Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		}
	}
	s.loc = loc
	return loc
}

// Start brings up the cron instance and runs an initial (forced) sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		s.log.Info("scheduler disabled")
		return nil
	}
	if s.c != nil {
		s.mu.Unlock()
		return nil
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithLocation(s.locLocked()))
	s.c.Start()
	s.mu.Unlock()

	return s.EnsureSchedules(ctx, true)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	s.entries = map[string]entry{}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
}

// EnsureSchedules reconciles triggers against the store: every non-paused
// workload ends up with exactly one daily entry at its configured time;
// paused and deleted workloads end up with none. Idempotent.
//
// Unless force is set, sweeps are throttled via an expiring store flag so
// frequent callers stay cheap.
func (s *Service) EnsureSchedules(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return nil
	}
	interval := s.cfg.EnsureInterval
	s.mu.Unlock()

	if !force && s.flags != nil {
		if _, set, err := s.flags.GetFlag(ctx, flagSweep); err == nil && set {
			return nil
		}
	}
	if s.flags != nil {
		_ = s.flags.SetFlag(ctx, flagSweep, time.Now().Add(interval))
	}

	all, err := s.store.All(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}

	// Drop triggers for deleted workloads.
	for id := range s.entries {
		if _, ok := all[id]; !ok {
			s.cancelLocked(id)
		}
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		w := all[id]
		if w.Paused {
			s.cancelLocked(id)
			continue
		}
		spec, err := cronSpec(w.Time)
		if err != nil {
			s.log.Warn("workload has invalid trigger time", logx.String("workload", id), logx.Err(err))
			continue
		}
		if e, ok := s.entries[id]; ok {
			if e.spec == spec {
				continue
			}
			// Time changed since the entry was registered.
			s.cancelLocked(id)
		}
		s.addLocked(id, spec)
	}
	return nil
}

// Reschedule moves a workload's trigger to a new time: cancel plus recreate.
func (s *Service) Reschedule(id, newTime string) error {
	spec, err := cronSpec(newTime)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	s.cancelLocked(id)
	s.addLocked(id, spec)
	return nil
}

// Cancel removes a workload's trigger, if any.
func (s *Service) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(id)
}

// NextRun reports the next firing instant for a workload's trigger.
func (s *Service) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || s.c == nil {
		return time.Time{}, false
	}
	return s.c.Entry(e.id).Next, true
}

func (s *Service) addLocked(id, spec string) {
	runCtx := s.runCtx
	entryID, err := s.c.AddFunc(spec, func() {
		if runCtx == nil {
			return
		}
		s.run(runCtx, id)
	})
	if err != nil {
		s.log.Error("failed to register trigger", logx.String("workload", id), logx.String("spec", spec), logx.Err(err))
		return
	}
	s.entries[id] = entry{id: entryID, spec: spec}
	s.log.Info("trigger registered", logx.String("workload", id), logx.String("spec", spec))
}

func (s *Service) cancelLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	if s.c != nil {
		s.c.Remove(e.id)
	}
	delete(s.entries, id)
	s.log.Info("trigger cancelled", logx.String("workload", id))
}
