package gocron

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bnema/khaos-agent/internal/ports"
	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultStopTimeout = 15 * time.Second

var ErrForeignJob = errors.New("job was not created by this scheduler")

type Options struct {
	Logger      logrus.FieldLogger
	StopTimeout time.Duration
}

// Scheduler runs periodic tasks on a gocron scheduler. Every job runs in
// singleton mode so a slow run delays the next one instead of overlapping it.
type Scheduler struct {
	sched gocron.Scheduler
	log   logrus.FieldLogger
}

type job struct {
	id      uuid.UUID
	name    string
	removed atomic.Bool
}

func (j *job) Name() string {
	return j.name
}

func New(opts Options) (*Scheduler, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}

	log := opts.Logger.WithField("component", "scheduler")
	sched, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithStopTimeout(opts.StopTimeout),
		gocron.WithLogger(logAdapter{log: log}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{sched: sched, log: log}, nil
}

func (s *Scheduler) Every(name string, interval time.Duration, task func()) (ports.Job, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("schedule %s: interval must be positive, got %s", name, interval)
	}

	j := &job{name: name}
	created, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if j.removed.Load() {
				return
			}
			task()
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}
	j.id = created.ID()

	s.log.WithFields(logrus.Fields{"job": name, "interval": interval.String()}).Debug("job scheduled")
	return j, nil
}

// Remove marks the job removed before unregistering it, so a run that gocron
// already queued returns without calling the task.
func (s *Scheduler) Remove(handle ports.Job) error {
	j, ok := handle.(*job)
	if !ok {
		return ErrForeignJob
	}
	if j.removed.Swap(true) {
		return nil
	}

	if err := s.sched.RemoveJob(j.id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		return fmt.Errorf("remove job %s: %w", j.name, err)
	}

	s.log.WithField("job", j.name).Debug("job removed")
	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

type logAdapter struct {
	log logrus.FieldLogger
}

func (l logAdapter) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l logAdapter) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l logAdapter) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l logAdapter) Error(msg string, args ...any) { l.with(args).Error(msg) }

// with turns gocron's alternating key/value arguments into logrus fields.
func (l logAdapter) with(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return l.log
	}

	fields := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields[key] = "(missing)"
		}
	}
	return l.log.WithFields(fields)
}
