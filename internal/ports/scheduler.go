package ports

import "time"

// Job is a handle on one periodic task registered with a Scheduler.
type Job interface {
	Name() string
}

// Scheduler runs named periodic tasks. Remove must be synchronous: once it
// returns, no invocation of the task may start, including one already queued.
type Scheduler interface {
	Every(name string, interval time.Duration, task func()) (Job, error)
	Remove(job Job) error
	Start()
	Shutdown() error
}
