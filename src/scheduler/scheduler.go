package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nepse-observer/src/interfaces"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/utils"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobRunning      = errors.New("job already running")
	ErrShutdownTimeout = errors.New("jobs still running after shutdown grace")
	ErrStopping        = errors.New("scheduler is shutting down")
)

// Job is one named unit of scheduled work. Run returns a short summary for
// the job status message.
type Job struct {
	Name    string
	Cadence Cadence
	Timeout time.Duration
	Run     func(ctx context.Context) (string, error)
}

// StatusStore persists job statuses across restarts.
type StatusStore interface {
	SaveJobStatus(ctx context.Context, status models.MJobStatus) error
	LoadJobStatuses(ctx context.Context) ([]models.MJobStatus, error)
}

type entry struct {
	job     Job
	running atomic.Bool

	mu     sync.Mutex
	status models.MJobStatus
}

// -----------------------------------------------------------------------------

// Scheduler owns the job registry, the cadence loops and the browser session
// the jobs share. A job never runs twice at once: ticks that find it running
// are skipped, not queued.
type Scheduler struct {
	Store   StatusStore // nil keeps statuses in memory only
	Session interfaces.ISessionReleaser
	Clock   utils.Clock
	Logger  *logger.Logger

	mu        sync.RWMutex
	jobs      map[string]*entry
	order     []string
	listeners []func(models.MJobStatus)

	loopCtx    context.Context
	stopLoops  context.CancelFunc
	runCtx     context.Context
	cancelRuns context.CancelFunc
	stopping   bool
	loops      sync.WaitGroup
	runs       sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewScheduler(store StatusStore, session interfaces.ISessionReleaser, clock utils.Clock, log *logger.Logger) *Scheduler {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Scheduler{
		Store:   store,
		Session: session,
		Clock:   clock,
		Logger:  log,
		jobs:    make(map[string]*entry),
	}
}

// -----------------------------------------------------------------------------

// Register adds a job. Jobs registered after Start get their loop at once.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	if job.Cadence == nil {
		job.Cadence = Manual()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	e := &entry{job: job}
	e.status = models.MJobStatus{JobName: job.Name, Status: models.JobIdle, Schedule: job.Cadence.String()}
	s.jobs[job.Name] = e
	s.order = append(s.order, job.Name)

	if s.loopCtx != nil {
		s.loops.Add(1)
		go s.loop(s.loopCtx, e)
	}
	return nil
}

// OnStatus registers a listener for every status change. Register listeners
// before Start.
func (s *Scheduler) OnStatus(fn func(models.MJobStatus)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Start restores persisted statuses and starts one loop per job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loopCtx != nil {
		return fmt.Errorf("scheduler is already running")
	}
	s.restoreLocked(ctx)

	s.stopping = false
	s.loopCtx, s.stopLoops = context.WithCancel(ctx)
	s.runCtx, s.cancelRuns = context.WithCancel(context.WithoutCancel(ctx))

	for _, name := range s.order {
		s.loops.Add(1)
		go s.loop(s.loopCtx, s.jobs[name])
	}
	s.Logger.Info("Scheduler started with %d jobs", len(s.order))
	return nil
}

// Stop cancels cadence timers, waits up to grace for running jobs, then
// releases the browser session whatever the outcome. Triggers after Stop
// begins fail with ErrStopping.
func (s *Scheduler) Stop(grace time.Duration) error {
	s.mu.Lock()
	s.stopping = true
	if s.loopCtx == nil {
		s.mu.Unlock()
		s.releaseSession()
		return nil
	}
	s.stopLoops()
	cancelRuns := s.cancelRuns
	s.loopCtx, s.stopLoops = nil, nil
	s.mu.Unlock()

	s.loops.Wait()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	var err error
	timer := time.NewTimer(grace)
	select {
	case <-done:
		timer.Stop()
	case <-timer.C:
		err = ErrShutdownTimeout
		s.Logger.Warning("Jobs still running after %v. Forcing shutdown.", grace)
	}
	cancelRuns()
	s.releaseSession()
	s.Logger.Info("Scheduler stopped")
	return err
}

func (s *Scheduler) releaseSession() {
	if s.Session != nil {
		s.Session.Release()
	}
}

// -----------------------------------------------------------------------------

// loop sleeps until the cadence's next tick and dispatches the job, until ctx
// ends or the cadence stops ticking.
func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.loops.Done()

	for {
		now := s.Clock.Now()
		next, ok := e.job.Cadence.Next(now)
		if !ok {
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := s.dispatch(e); errors.Is(err, ErrJobRunning) {
			s.Logger.Info("Job %s still running. Tick skipped.", e.job.Name)
		}
	}
}

// dispatch starts one asynchronous run unless the job is already running.
// The run is counted under s.mu so Stop never waits on a moving target.
func (s *Scheduler) dispatch(e *entry) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopping {
		return "", ErrStopping
	}
	if !e.running.CompareAndSwap(false, true) {
		return "", ErrJobRunning
	}
	runID := uuid.NewString()
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer e.running.Store(false)
		_ = s.execute(ctx, e, runID)
	}()
	return runID, nil
}

// -----------------------------------------------------------------------------

// Trigger starts a manual run in the background and returns its run id.
func (s *Scheduler) Trigger(name string) (string, error) {
	e, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	s.Logger.Info("Manual trigger of %s", name)
	return s.dispatch(e)
}

// RunNow runs a job on the caller's goroutine and returns its final status.
func (s *Scheduler) RunNow(ctx context.Context, name string) (models.MJobStatus, error) {
	e, err := s.lookup(name)
	if err != nil {
		return models.MJobStatus{}, err
	}
	if !e.running.CompareAndSwap(false, true) {
		return e.snapshot(), ErrJobRunning
	}
	defer e.running.Store(false)

	err = s.execute(ctx, e, uuid.NewString())
	return e.snapshot(), err
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrJobNotFound)
	}
	return e, nil
}

// -----------------------------------------------------------------------------

// execute runs the job once. The caller holds the job's running flag.
func (s *Scheduler) execute(ctx context.Context, e *entry, runID string) error {
	started := time.Now()
	now := s.Clock.Now()

	s.update(e, func(st *models.MJobStatus) {
		rollDay(st, now)
		st.Status = models.JobRunning
		st.LastRun = now.UnixMilli()
		st.LastRunID = runID
		st.Message = ""
	})

	runCtx := ctx
	if e.job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.job.Timeout)
		defer cancel()
	}
	msg, err := safeRun(runCtx, e.job)

	finished := s.Clock.Now()
	s.update(e, func(st *models.MJobStatus) {
		rollDay(st, finished)
		st.LastDuration = time.Since(started).Milliseconds()
		if err != nil {
			st.Status = models.JobFailed
			st.Message = err.Error()
			st.TotalFailure++
			st.TodayFailure++
			return
		}
		st.Status = models.JobSuccess
		st.Message = msg
		st.LastSuccess = finished.UnixMilli()
		st.TotalSuccess++
		st.TodaySuccess++
	})

	if err != nil {
		s.Logger.Error("Job %s (%s) failed: %v", e.job.Name, runID, err)
	} else {
		s.Logger.Info("Job %s (%s) done in %v: %s", e.job.Name, runID, time.Since(started).Round(time.Millisecond), msg)
	}
	return err
}

func safeRun(ctx context.Context, job Job) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}

// rollDay zeroes the daily counters when the market-local date changed.
func rollDay(st *models.MJobStatus, now time.Time) {
	today := utils.BusinessDate(now)
	if st.StatsDate != today {
		st.StatsDate = today
		st.TodaySuccess = 0
		st.TodayFailure = 0
	}
}

// -----------------------------------------------------------------------------

// update mutates the status, then persists and publishes a copy.
func (s *Scheduler) update(e *entry, fn func(st *models.MJobStatus)) {
	e.mu.Lock()
	fn(&e.status)
	st := e.status
	e.mu.Unlock()

	if s.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Store.SaveJobStatus(ctx, st); err != nil {
			s.Logger.Warning("Could not persist status of %s: %v", st.JobName, err)
		}
		cancel()
	}

	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(st)
	}
}

func (e *entry) snapshot() models.MJobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Restore loads persisted statuses without starting any loop, for one-shot
// runs through RunNow.
func (s *Scheduler) Restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreLocked(ctx)
}

// restoreLocked copies persisted counters onto registered jobs. A status
// left running by a dead process is reported as interrupted.
func (s *Scheduler) restoreLocked(ctx context.Context) {
	if s.Store == nil {
		return
	}
	saved, err := s.Store.LoadJobStatuses(ctx)
	if err != nil {
		s.Logger.Warning("Could not restore job statuses: %v", err)
		return
	}
	for _, st := range saved {
		e, ok := s.jobs[st.JobName]
		if !ok {
			continue
		}
		st.Schedule = e.job.Cadence.String()
		if st.Status == models.JobRunning {
			st.Status = models.JobIdle
			st.Message = "interrupted by restart"
		}
		e.mu.Lock()
		e.status = st
		e.mu.Unlock()
	}
	s.Logger.Info("Restored %d job statuses", len(saved))
}

// -----------------------------------------------------------------------------

// Status returns the named job's current status.
func (s *Scheduler) Status(name string) (models.MJobStatus, error) {
	e, err := s.lookup(name)
	if err != nil {
		return models.MJobStatus{}, err
	}
	return e.snapshot(), nil
}

// Statuses returns every job's status in registration order.
func (s *Scheduler) Statuses() []models.MJobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MJobStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.jobs[name].snapshot())
	}
	return out
}

// Running reports whether the named job has a run in flight.
func (s *Scheduler) Running(name string) bool {
	e, err := s.lookup(name)
	return err == nil && e.running.Load()
}
