// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus describes one registered job
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next,omitempty"`
	Prev     time.Time `json:"prev,omitempty"`
	Failures int       `json:"failures"`
	LastErr  string    `json:"last_error,omitempty"`
}

type entry struct {
	id       cron.EntryID
	schedule string
	failures int
	lastErr  string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*entry
}

// New creates a new scheduler. Schedules use six fields, seconds first.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]*entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "0 0 3 * * *"        - Every day at 03:00
//   - "@hourly"            - Every hour
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() {
		s.execute(job)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs[job.Name()] = &entry{id: id, schedule: schedule}
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(job)
}

func (s *Scheduler) execute(job Job) error {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	err := job.Run()

	s.mu.Lock()
	if e, ok := s.jobs[job.Name()]; ok {
		if err != nil {
			e.failures++
			e.lastErr = err.Error()
		} else {
			e.lastErr = ""
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
		return err
	}

	s.log.Debug().Str("job", job.Name()).Msg("Job completed")
	return nil
}

// Jobs returns the registered jobs sorted by name
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, e := range s.jobs {
		ce := s.cron.Entry(e.id)
		out = append(out, JobStatus{
			Name:     name,
			Schedule: e.schedule,
			Next:     ce.Next,
			Prev:     ce.Prev,
			Failures: e.failures,
			LastErr:  e.lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
