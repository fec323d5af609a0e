package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/testbook/internal/chunker"
	"github.com/dgallion1/testbook/internal/config"
	"github.com/dgallion1/testbook/internal/extract"
	"github.com/dgallion1/testbook/internal/generate"
	"github.com/dgallion1/testbook/internal/index"
	"github.com/dgallion1/testbook/internal/processor"
)

// Orchestrator manages the document-to-testbook pipeline.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	cache  *ResultCache
	idx    *index.Client
	log    *slog.Logger
	cfg    config.Config
	worker WorkerConfig

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates the pipeline. gen may be generate.Disabled{} and
// idx may be nil.
func NewOrchestrator(cfg config.Config, gen generate.Generator, idx *index.Client, ex *extract.Extractor, log *slog.Logger) (*Orchestrator, error) {
	cache, err := NewResultCache(cfg.ResultCacheSize)
	if err != nil {
		return nil, err
	}
	chunking := chunker.DefaultConfig()
	chunking.ChunkSize = cfg.ChunkSize
	chunking.Overlap = cfg.ChunkOverlap

	return &Orchestrator{
		jobs:  NewJobStore(cfg.JobTTL),
		queue: make(chan *Job, cfg.MaxQueueSize),
		cache: cache,
		idx:   idx,
		log:   log,
		cfg:   cfg,
		worker: WorkerConfig{
			Generator:             gen,
			Index:                 idx,
			Cache:                 cache,
			Processing:            processor.Options{Chunking: chunking, Extractor: ex},
			PDFFallback:           cfg.PDFFallbackPdftotext,
			MaxFeatures:           cfg.MaxFeatures,
			MaxConcurrentGenerate: cfg.MaxConcurrentGenerate,
			MaxConcurrentIndex:    cfg.MaxConcurrentIndex,
		},
	}, nil
}

// DefaultChunking returns the chunking settings jobs use unless overridden.
func (o *Orchestrator) DefaultChunking() chunker.Config {
	return o.worker.Processing.Chunking
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.worker, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return fmt.Errorf("pipeline is stopped")
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Delete forgets a job. For jobs that produced their own document it also
// drops the cached result and the document's indexed chunks.
func (o *Orchestrator) Delete(ctx context.Context, id string) (bool, error) {
	job := o.jobs.Delete(id)
	if job == nil {
		return false, nil
	}
	snap := job.Snapshot()
	if snap.DocID == "" || snap.DuplicateOf != "" {
		return true, nil
	}
	o.cache.RemoveDocument(snap.DocID)
	if o.idx != nil {
		if err := o.idx.DeleteDocument(ctx, snap.DocID); err != nil {
			return true, err
		}
	}
	return true, nil
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// JobCount returns the number of tracked jobs.
func (o *Orchestrator) JobCount() int {
	return o.jobs.Len()
}

// ErrNoIndex is returned by IndexedChunks when no index is configured.
var ErrNoIndex = errors.New("index not configured")

// IndexedChunks lists the chunks stored in the index for a job's document.
func (o *Orchestrator) IndexedChunks(ctx context.Context, job *Job, limit int) ([]index.Entry, error) {
	if o.idx == nil {
		return nil, ErrNoIndex
	}
	docID := job.Snapshot().DocID
	if docID == "" {
		return nil, nil
	}
	return o.idx.ListChunks(ctx, docID, limit)
}
