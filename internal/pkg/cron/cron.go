package cron

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// JobStatus is the outcome of a job's latest run.
type JobStatus string

const (
	StatusIdle    JobStatus = "idle"
	StatusRunning JobStatus = "running"
	StatusFulfill JobStatus = "fulfill"
	StatusReject  JobStatus = "reject"
)

// Job is a named maintenance task run every Interval.
type Job struct {
	Name        string
	Description string
	Interval    time.Duration
	Fn          func(ctx context.Context) error
}

type jobState struct {
	Job

	mu      sync.Mutex
	status  JobStatus
	message string
	lastRun *time.Time
	nextRun time.Time
}

// ListItem describes a job for the admin API.
type ListItem struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      JobStatus  `json:"status"`
	NextDate    time.Time  `json:"nextDate"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"`
}

// TaskResult is the state of a job's latest run.
type TaskResult struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// Scheduler runs registered jobs until its context ends.
type Scheduler struct {
	jobs *xsync.MapOf[string, *jobState]
	log  *zap.Logger
}

func New(log *zap.Logger) *Scheduler {
	return &Scheduler{jobs: xsync.NewMapOf[string, *jobState](), log: log}
}

// Register adds a job. Jobs registered after Start are never scheduled, but
// can still be run by name.
func (s *Scheduler) Register(job Job) {
	if job.Interval <= 0 {
		job.Interval = time.Minute
	}
	s.jobs.Store(job.Name, &jobState{Job: job, status: StatusIdle, nextRun: time.Now().Add(job.Interval)})
}

// Start schedules every registered job in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.jobs.Range(func(_ string, js *jobState) bool {
		go s.loop(ctx, js)
		return true
	})
}

func (s *Scheduler) loop(ctx context.Context, js *jobState) {
	ticker := time.NewTicker(js.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, js)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, js *jobState) {
	js.mu.Lock()
	if js.status == StatusRunning {
		js.mu.Unlock()
		return
	}
	js.status = StatusRunning
	js.mu.Unlock()

	started := time.Now()
	err := js.Fn(ctx)

	js.mu.Lock()
	defer js.mu.Unlock()
	js.lastRun = &started
	js.nextRun = time.Now().Add(js.Interval)
	if err != nil {
		js.status = StatusReject
		js.message = err.Error()
		s.log.Warn("cron job failed", zap.String("job", js.Name), zap.Error(err))
		return
	}
	js.status = StatusFulfill
	js.message = ""
}

// Run triggers a job by name without waiting for it.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	js, ok := s.jobs.Load(name)
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	go s.execute(context.WithoutCancel(ctx), js)
	return nil
}

// GetTask reports the latest run of a job.
func (s *Scheduler) GetTask(name string) (*TaskResult, error) {
	js, ok := s.jobs.Load(name)
	if !ok {
		return nil, fmt.Errorf("job %q not found", name)
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return &TaskResult{Status: js.status, Message: js.message}, nil
}

// List returns every job ordered by name.
func (s *Scheduler) List() []ListItem {
	items := make([]ListItem, 0, s.jobs.Size())
	s.jobs.Range(func(_ string, js *jobState) bool {
		js.mu.Lock()
		items = append(items, ListItem{
			Name:        js.Name,
			Description: js.Description,
			Status:      js.status,
			NextDate:    js.nextRun,
			LastRunAt:   js.lastRun,
		})
		js.mu.Unlock()
		return true
	})
	slices.SortFunc(items, func(a, b ListItem) int { return cmp.Compare(a.Name, b.Name) })
	return items
}
