// Package jobs tracks asynchronous import runs in memory and exposes
// their reports by job identifier.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NadeemAtDure/dhis2-core/lib/logging"
	"github.com/NadeemAtDure/dhis2-core/lib/trackerimport"
)

// Phase is the lifecycle state of a job.
type Phase string

const (
	PhaseRunning   = Phase("RUNNING")
	PhaseCompleted = Phase("COMPLETED")
	PhaseFailed    = Phase("FAILED")
)

// Report is the externally visible state of one job.
type Report struct {
	ID        string                       `json:"id"`
	Phase     Phase                        `json:"phase"`
	CreatedAt time.Time                    `json:"createdAt"`
	UpdatedAt time.Time                    `json:"updatedAt"`
	Summary   *trackerimport.ImportSummary `json:"report,omitempty"`
	Error     string                       `json:"error,omitempty"`
}

type job struct {
	report Report
}

// Registry runs jobs on goroutines and keeps their reports for later
// retrieval. Reports live for the lifetime of the process.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*job

	clock func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:  map[string]*job{},
		clock: time.Now,
	}
}

// Start launches fn on its own goroutine and returns the job
// identifier immediately. The job context carries the registry
// caller's logger but not its cancellation; an aborted request must
// not abort a running import.
func (r *Registry) Start(ctx context.Context, fn func(ctx context.Context) (*trackerimport.ImportSummary, error)) string {
	id := uuid.New().String()
	callerData := logging.DataFromContext(ctx)
	logger := callerData.Logger.With(zap.String("jobId", id))

	now := r.clock()
	r.mu.Lock()
	r.jobs[id] = &job{report: Report{
		ID:        id,
		Phase:     PhaseRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	r.mu.Unlock()

	jobCtx := logging.NewContextWithLogger(context.Background(), logger, callerData.Debug)
	go func() {
		summary, err := fn(jobCtx)
		r.mu.Lock()
		defer r.mu.Unlock()
		j := r.jobs[id]
		j.report.UpdatedAt = r.clock()
		if err != nil {
			j.report.Phase = PhaseFailed
			j.report.Error = err.Error()
			logger.Error("job failed", zap.Error(err))
			return
		}
		j.report.Phase = PhaseCompleted
		j.report.Summary = summary
		logger.Info("job completed", zap.String("status", string(summary.Status)))
	}()

	return id
}

// Report returns the report for a job, or false if the identifier is
// unknown.
func (r *Registry) Report(id string) (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Report{}, false
	}
	return j.report, true
}
