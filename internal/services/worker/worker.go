// Package worker runs admitted analysis jobs in the background.
//
// Go Pattern: A buffered channel is the job queue and N goroutines drain it.
// HTTP handlers submit with a non-blocking send, so a full queue is reported
// to the client instead of stalling the request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/budget"
)

// ErrQueueFull is returned by Submit when no slot is free.
var ErrQueueFull = errors.New("job queue is full; try again later")

// JobStore persists job state. *database.DB satisfies it.
type JobStore interface {
	GetAnalysisJob(ctx context.Context, id string) (*models.AnalysisJob, error)
	UpdateAnalysisJob(ctx context.Context, job *models.AnalysisJob) error
}

// Executor runs an already-admitted analysis. *analysis.Service satisfies it.
// Release must be safe to call after Execute has already released.
type Executor interface {
	Execute(ctx context.Context, requester models.Requester, req models.AnalysisRequest, adm *budget.Admission) (*models.AnalysisResponse, error)
	Release(adm *budget.Admission)
}

// Job is one admitted analysis waiting for a worker.
type Job struct {
	ID        string // analysis_jobs row id
	Requester models.Requester
	Request   models.AnalysisRequest
	Admission *budget.Admission
	CreatedAt time.Time
}

// Pool manages the worker goroutines.
type Pool struct {
	jobs     chan Job
	workers  int
	store    JobStore
	executor Executor

	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a worker pool.
func NewPool(workers, queueSize int, store JobStore, executor Executor) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:     make(chan Job, queueSize),
		workers:  workers,
		store:    store,
		executor: executor,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	log.Printf("🚀 Starting %d analysis workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels in-flight work, fails anything still queued, and waits for
// every worker to exit.
func (p *Pool) Stop() {
	log.Println("⏹️  Stopping workers...")
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
	log.Println("✅ All workers stopped")
}

// Submit queues a job without blocking.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		log.Printf("📥 Analysis job queued: %s", job.ID)
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueSize returns the number of queued jobs.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int {
	return p.workers
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log.Printf("👷 Worker %d started", id)

	for job := range p.jobs {
		if p.ctx.Err() != nil {
			p.abandon(job)
			p.executor.Release(job.Admission)
			continue
		}

		log.Printf("👷 Worker %d processing analysis %s", id, job.ID)
		if err := p.process(job); err != nil {
			log.Printf("❌ Worker %d: analysis %s failed: %v", id, job.ID, err)
		} else {
			log.Printf("✅ Worker %d: analysis %s completed", id, job.ID)
		}
		// Covers jobs that failed before reaching Execute.
		p.executor.Release(job.Admission)
	}

	log.Printf("👷 Worker %d stopped", id)
}

func (p *Pool) process(job Job) error {
	ctx := p.ctx

	row, err := p.store.GetAnalysisJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to get analysis job: %w", err)
	}

	row.Status = models.JobProcessing
	if err := p.store.UpdateAnalysisJob(ctx, row); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	resp, runErr := p.executor.Execute(ctx, job.Requester, job.Request, job.Admission)

	if resp != nil {
		body, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		row.Response = string(body)
	}
	if runErr != nil {
		row.Status = models.JobFailed
		row.ErrorMessage = runErr.Error()
	} else {
		row.Status = models.JobCompleted
	}

	// The pool context may already be cancelled during shutdown; the final
	// state is still written.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.UpdateAnalysisJob(saveCtx, row); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return runErr
}

// abandon marks a job that was still queued at shutdown as failed.
func (p *Pool) abandon(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row, err := p.store.GetAnalysisJob(ctx, job.ID)
	if err != nil {
		log.Printf("⚠️  Could not load abandoned job %s: %v", job.ID, err)
		return
	}
	row.Status = models.JobFailed
	row.ErrorMessage = "server shut down before the analysis started"
	if err := p.store.UpdateAnalysisJob(ctx, row); err != nil {
		log.Printf("⚠️  Could not mark job %s as failed: %v", job.ID, err)
	}
}
