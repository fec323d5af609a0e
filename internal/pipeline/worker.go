package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/generate"
	"github.com/dgallion1/testbook/internal/index"
	"github.com/dgallion1/testbook/internal/metrics"
	"github.com/dgallion1/testbook/internal/parser"
	"github.com/dgallion1/testbook/internal/processor"
	"github.com/dgallion1/testbook/internal/testbook"
)

const (
	maxContextChunks      = 3
	maxPromptRequirements = 10
)

// WorkerConfig wires a Worker to its collaborators.
type WorkerConfig struct {
	Generator             generate.Generator
	Index                 *index.Client // Nil skips indexing.
	Cache                 *ResultCache  // Nil disables duplicate detection.
	Processing            processor.Options
	PDFFallback           bool
	MaxFeatures           int
	MaxConcurrentGenerate int
	MaxConcurrentIndex    int
}

// Worker processes a single document job.
type Worker struct {
	gen        generate.Generator
	idx        *index.Client
	cache      *ResultCache
	normalizer *testbook.Normalizer
	log        *slog.Logger
	opts       processor.Options

	pdfFallback           bool
	maxFeatures           int
	maxConcurrentGenerate int
	maxConcurrentIndex    int

	backoff func(attempt int) time.Duration
}

func NewWorker(cfg WorkerConfig, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	gen := cfg.Generator
	if gen == nil {
		gen = generate.Disabled{}
	}
	return &Worker{
		gen:                   gen,
		idx:                   cfg.Index,
		cache:                 cfg.Cache,
		normalizer:            testbook.NewNormalizer(log),
		log:                   log,
		opts:                  cfg.Processing,
		pdfFallback:           cfg.PDFFallback,
		maxFeatures:           cfg.MaxFeatures,
		maxConcurrentGenerate: max(cfg.MaxConcurrentGenerate, 1),
		maxConcurrentIndex:    max(cfg.MaxConcurrentIndex, 1),
		backoff:               Backoff,
	}
}

// Process runs the full pipeline for a job: parse, structure, index,
// generate, validate.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	jo := job.Options()

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename)
	if err != nil {
		w.fail(job, log, "parsing", err)
		return
	}
	if pp, ok := p.(*parser.PDFParser); ok {
		pp.FallbackPdftotext = w.pdfFallback
	}
	ext, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	job.SetFileData(nil)
	if err != nil {
		w.fail(job, log, "parsing", fmt.Errorf("parse: %w", err))
		return
	}
	text := ext.Text()
	job.setHash(ContentHashHex([]byte(text)))

	opts := w.opts
	if jo.Chunking != nil {
		opts.Chunking = *jo.Chunking
	}

	// Phase 1.5: Dedup check
	key := CacheKey(job.ContentHash, opts.Chunking, jo)
	if w.cache != nil {
		if cached, ok := w.cache.Get(key); ok {
			log.Info("duplicate document, reusing result", "existing_doc_id", cached.Document.ID)
			job.finish(cached, StatusDupSkipped, cached.Document.ID)
			metrics.Get().Documents.WithLabelValues(string(StatusDupSkipped)).Inc()
			return
		}
	}

	// Phase 2: Structure
	job.SetStatus(StatusStructuring, "structuring")
	doc, err := processor.Process(job.Filename, text, opts)
	if err != nil {
		w.fail(job, log, "structuring", err)
		return
	}
	if jo.Title != "" {
		doc.Title = jo.Title
	}
	job.SetDocument(doc)
	log = log.With("doc_id", doc.ID)
	recordExtraction(doc)
	log.Info("structured document",
		"chunks", len(doc.Chunks),
		"requirements", len(doc.Requirements),
		"features", len(doc.Features),
		"workflows", len(doc.Workflows))

	hadErrors := false

	// Phase 3: Index chunks for retrieval.
	if w.idx != nil {
		job.SetStatus(StatusIndexing, "indexing")
		if failed := w.indexChunks(ctx, job, doc, log); failed > 0 {
			hadErrors = true
		}
	}

	// Phase 4: Generate procedures per feature.
	job.SetStatus(StatusGenerating, "generating")
	features := selectFeatures(doc.Features, jo.Features, w.maxFeatures)
	job.SetTotalFeatures(len(features))
	procs, genFailed := w.generateAll(ctx, job, doc, features, log)
	if genFailed > 0 {
		hadErrors = true
	}
	if ctx.Err() != nil {
		w.fail(job, log, "generating", ctx.Err())
		return
	}

	// Phase 5: Assemble and validate.
	job.SetStatus(StatusValidating, "validating")
	tb := testbook.Assemble(
		"Manual Testbook - "+doc.Title,
		"Manual test procedures generated from "+doc.Filename,
		doc.ID,
		procs,
	)
	tb = tb.WithCoverage(testbook.ComputeCoverage(tb, doc.Features, doc.Requirements))
	result := &Result{Document: doc, Testbook: tb, Report: testbook.Validate(tb)}

	status := StatusCompleted
	if hadErrors {
		status = StatusPartial
	} else if w.cache != nil {
		w.cache.Add(key, result)
	}
	job.finish(result, status, "")
	metrics.Get().Documents.WithLabelValues(string(status)).Inc()
	log.Info("job finished",
		"status", status,
		"procedures", len(procs),
		"complete", result.Report.IsComplete,
		"issues", len(result.Report.Issues))
}

func (w *Worker) fail(job *Job, log *slog.Logger, phase string, err error) {
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
	metrics.Get().Documents.WithLabelValues(string(StatusFailed)).Inc()
}

func recordExtraction(doc *document.Structured) {
	m := metrics.Get()
	m.Chunks.Add(float64(len(doc.Chunks)))
	m.Extractions.WithLabelValues("requirement").Add(float64(len(doc.Requirements)))
	m.Extractions.WithLabelValues("feature").Add(float64(len(doc.Features)))
	m.Extractions.WithLabelValues("workflow").Add(float64(len(doc.Workflows)))
}

// indexChunks pushes every chunk with bounded concurrency, then links
// neighbors. It returns the number of chunks that failed to index.
func (w *Worker) indexChunks(ctx context.Context, job *Job, doc *document.Structured, log *slog.Logger) int {
	sem := make(chan struct{}, w.maxConcurrentIndex)
	errs := make(chan error, len(doc.Chunks))
	var wg sync.WaitGroup

	for _, chunk := range doc.Chunks {
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			if err := w.idx.PutChunk(ctx, doc, chunk); err != nil {
				errs <- err
				return
			}
			job.IncrChunksIndexed()
		})
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		failed++
		log.Error("index failed", "error", err)
		job.AddError(err.Error())
	}
	if failed > 0 {
		return failed
	}

	for i := 1; i < len(doc.Chunks); i++ {
		if err := w.idx.LinkChunks(ctx, doc.ID, doc.Chunks[i-1], doc.Chunks[i]); err != nil {
			log.Warn("chunk link failed", "error", err)
		}
	}
	log.Info("indexing complete", "chunks", len(doc.Chunks))
	return 0
}

type featureResult struct {
	batch testbook.Batch
	err   error
}

// generateAll generates and normalizes procedures for each feature with
// bounded concurrency. Procedures keep feature order. It returns the number
// of features whose generation call failed; those features get the fallback
// procedure.
func (w *Worker) generateAll(ctx context.Context, job *Job, doc *document.Structured, features []document.Feature, log *slog.Logger) ([]testbook.Procedure, int) {
	results := make([]featureResult, len(features))
	sem := make(chan struct{}, w.maxConcurrentGenerate)
	var wg sync.WaitGroup

	for i, f := range features {
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			ctxChunks := contextFor(doc.Chunks, f)
			req := generate.Request{
				Feature:      f,
				Requirements: relatedRequirements(doc.Requirements, ctxChunks),
				Context:      ctxChunks,
			}
			records, err := w.generateWithRetry(ctx, req, log)
			batch := w.normalizer.NormalizeBatch(records, f)
			results[i] = featureResult{batch: batch, err: err}
			job.AddGenerated(len(batch.Procedures), len(batch.Dropped))
		})
	}
	wg.Wait()

	m := metrics.Get()
	var procs []testbook.Procedure
	failed := 0
	for i, r := range results {
		if r.err != nil {
			failed++
			log.Error("generation failed", "feature_id", features[i].ID, "error", r.err)
			job.AddError(fmt.Sprintf("feature %s: %s", features[i].ID, r.err))
		}
		for _, path := range r.batch.Paths {
			m.Procedures.WithLabelValues(string(path)).Inc()
		}
		m.ProceduresDropped.Add(float64(len(r.batch.Dropped)))
		procs = append(procs, r.batch.Procedures...)
	}
	return procs, failed
}

func (w *Worker) generateWithRetry(ctx context.Context, req generate.Request, log *slog.Logger) ([]testbook.RawRecord, error) {
	var records []testbook.RawRecord
	var lastErr error
	for attempt := range MaxRetries {
		records, lastErr = w.gen.Generate(ctx, req)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
		log.Warn("retryable generation error", "feature_id", req.Feature.ID, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return records, nil
}

// selectFeatures keeps the features named in ids (all when ids is empty),
// capped at limit when limit > 0.
func selectFeatures(all []document.Feature, ids []string, limit int) []document.Feature {
	out := all
	if len(ids) > 0 {
		want := make(map[string]bool, len(ids))
		for _, id := range ids {
			want[strings.TrimSpace(id)] = true
		}
		out = nil
		for _, f := range all {
			if want[f.ID] {
				out = append(out, f)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// contextFor returns up to three chunks that contain the feature's text.
func contextFor(chunks []document.Chunk, f document.Feature) []document.Chunk {
	var out []document.Chunk
	for _, c := range chunks {
		if len(out) == maxContextChunks {
			break
		}
		if f.Description != "" && strings.Contains(c.Content, f.Description) {
			out = append(out, c)
		}
	}
	return out
}

// relatedRequirements prefers requirements found in the same chunks as the
// feature, falling back to the first requirements of the document.
func relatedRequirements(reqs []document.Requirement, chunks []document.Chunk) []document.Requirement {
	var near []document.Requirement
	for _, r := range reqs {
		for _, c := range chunks {
			if strings.Contains(c.Content, r.Description) {
				near = append(near, r)
				break
			}
		}
	}
	if len(near) == 0 {
		near = reqs
	}
	return near[:min(len(near), maxPromptRequirements)]
}
