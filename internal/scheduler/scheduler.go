// Package scheduler triggers evaluation runs from a declarative job table:
// fixed clock times on selected weekdays, or a plain repeat interval.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

// RunFunc is invoked for every job firing. Runs are serialized: a firing that
// arrives while another run is in flight waits its turn.
type RunFunc func(ctx context.Context, jobName string)

// clockTime is a wall-clock minute of day.
type clockTime struct {
	hour, minute int
}

// job is one parsed table entry.
type job struct {
	name     string
	times    []clockTime
	weekdays map[time.Weekday]bool // nil means every day
	every    time.Duration
}

// Scheduler owns the job goroutines and their status book-keeping.
type Scheduler struct {
	logger *zap.Logger
	loc    *time.Location
	jobs   []job
	run    RunFunc

	runMu sync.Mutex // serializes run invocations across jobs

	statusMu sync.RWMutex
	status   map[string]*JobStatus

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

// JobStatus is the live view of one job, served by the status endpoint.
type JobStatus struct {
	Name    string    `json:"name"`
	LastRun time.Time `json:"lastRun,omitempty"`
	NextRun time.Time `json:"nextRun,omitempty"`
	Runs    int64     `json:"runs"`
}

var weekdayTokens = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// New parses the job table against the given timezone name.
func New(logger *zap.Logger, cfg types.SchedulerConfig, timezone string, run RunFunc) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	s := &Scheduler{
		logger: logger,
		loc:    loc,
		run:    run,
		status: make(map[string]*JobStatus),
	}
	for _, jc := range cfg.Jobs {
		j, err := parseJob(jc)
		if err != nil {
			return nil, err
		}
		s.jobs = append(s.jobs, j)
		s.status[j.name] = &JobStatus{Name: j.name}
	}
	return s, nil
}

func parseJob(cfg types.JobConfig) (job, error) {
	j := job{name: cfg.Name, every: cfg.Every}
	if cfg.Name == "" {
		return j, fmt.Errorf("job without a name")
	}
	if (len(cfg.Times) == 0) == (cfg.Every == 0) {
		return j, fmt.Errorf("job %s: exactly one of times or every must be set", cfg.Name)
	}

	for _, t := range cfg.Times {
		ct, err := parseClockTime(t)
		if err != nil {
			return j, fmt.Errorf("job %s: %w", cfg.Name, err)
		}
		j.times = append(j.times, ct)
	}
	if len(cfg.Weekdays) > 0 {
		j.weekdays = make(map[time.Weekday]bool, len(cfg.Weekdays))
		for _, w := range cfg.Weekdays {
			wd, ok := weekdayTokens[strings.ToLower(strings.TrimSpace(w))]
			if !ok {
				return j, fmt.Errorf("job %s: unknown weekday %q", cfg.Name, w)
			}
			j.weekdays[wd] = true
		}
	}
	return j, nil
}

func parseClockTime(s string) (clockTime, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return clockTime{}, fmt.Errorf("bad clock time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return clockTime{}, fmt.Errorf("bad clock time %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return clockTime{}, fmt.Errorf("bad clock time %q", s)
	}
	return clockTime{hour: hour, minute: minute}, nil
}

// next returns the job's earliest firing strictly after now.
func (j job) next(now time.Time, loc *time.Location) time.Time {
	if j.every > 0 {
		return now.Add(j.every)
	}

	now = now.In(loc)
	for offset := 0; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		if j.weekdays != nil && !j.weekdays[day.Weekday()] {
			continue
		}
		for _, ct := range j.times {
			candidate := time.Date(day.Year(), day.Month(), day.Day(), ct.hour, ct.minute, 0, 0, loc)
			if candidate.After(now) {
				return candidate
			}
		}
	}
	// Unreachable for a valid job: some weekday within 7 days always matches.
	return now.AddDate(0, 0, 7)
}

// Start launches one goroutine per job.
func (s *Scheduler) Start() {
	if s.started.Swap(true) {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, j := range s.jobs {
		j := j
		s.wg.Add(1)
		go s.runJob(j)
	}
	s.logger.Info("scheduler started",
		zap.Int("jobs", len(s.jobs)),
		zap.String("timezone", s.loc.String()))
}

func (s *Scheduler) runJob(j job) {
	defer s.wg.Done()

	for {
		fireAt := j.next(time.Now(), s.loc)
		s.setNextRun(j.name, fireAt)

		timer := time.NewTimer(time.Until(fireAt))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.fire(j.name)
	}
}

func (s *Scheduler) fire(name string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := time.Now()
	s.logger.Info("job fired", zap.String("job", name))
	s.run(s.ctx, name)

	s.statusMu.Lock()
	st := s.status[name]
	st.LastRun = started
	st.Runs++
	s.statusMu.Unlock()
}

func (s *Scheduler) setNextRun(name string, at time.Time) {
	s.statusMu.Lock()
	s.status[name].NextRun = at
	s.statusMu.Unlock()
}

// Stop halts all jobs and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if !s.started.Swap(false) {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Status returns a snapshot of every job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.statusMu.RLock()
	out := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	s.statusMu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}
