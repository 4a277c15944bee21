package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// ErrJobNotFound is returned by RunNow for a name that was never registered
var ErrJobNotFound = errors.New("job not found")

// Job interface that all scheduled jobs must implement
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type registeredJob struct {
	job      Job
	cronExpr string
	schedule cron.Schedule

	lastRun   time.Time
	lastError string
	runCount  int
}

// JobScheduler runs registered jobs on cron schedules
type JobScheduler struct {
	scheduler gocron.Scheduler
	parser    cron.Parser
	jobs      map[string]*registeredJob
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
	now       func() time.Time
}

// NewJobScheduler creates a new job scheduler. All schedules are evaluated in UTC.
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		jobs:      make(map[string]*registeredJob),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}, nil
}

// Register adds a job on a five-field cron expression. A job whose previous run
// is still going when the next tick arrives is skipped for that tick.
func (s *JobScheduler) Register(job Job, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s is already registered", name)
	}

	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", cronExpr, name, err)
	}

	_, err = s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			s.runJob(s.ctx, name)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}

	s.jobs[name] = &registeredJob{job: job, cronExpr: cronExpr, schedule: schedule}
	log.Printf("✅ [SCHEDULER] Registered job: %s (cron: %s)", name, cronExpr)
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started job scheduler with %d jobs", len(s.jobs))
}

// Stop cancels running jobs and waits for them to return
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️  [SCHEDULER] Shutdown error: %v", err)
	}
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

// RunNow immediately runs a registered job and returns its error
func (s *JobScheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	_, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return s.runJob(ctx, name)
}

func (s *JobScheduler) runJob(ctx context.Context, name string) error {
	s.mu.Lock()
	entry := s.jobs[name]
	s.mu.Unlock()

	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := s.now()

	err := entry.job.Run(ctx)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
	} else {
		log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
	}

	s.mu.Lock()
	entry.lastRun = startTime
	entry.runCount++
	entry.lastError = ""
	if err != nil {
		entry.lastError = err.Error()
	}
	s.mu.Unlock()

	return err
}

// GetStatus returns the status of all jobs, sorted by name
func (s *JobScheduler) GetStatus() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	status := make([]JobStatus, 0, len(s.jobs))
	for name, entry := range s.jobs {
		js := JobStatus{
			Name:        name,
			Schedule:    entry.cronExpr,
			NextRunTime: entry.schedule.Next(now),
			RunCount:    entry.runCount,
			LastError:   entry.lastError,
			Running:     s.running,
		}
		if !entry.lastRun.IsZero() {
			lastRun := entry.lastRun
			js.LastRunTime = &lastRun
		}
		status = append(status, js)
	}

	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	NextRunTime time.Time  `json:"next_run_time"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	RunCount    int        `json:"run_count"`
	Running     bool       `json:"running"`
}
