package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/testbook/internal/parser"
	"github.com/dgallion1/testbook/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

const defaultChunkListLimit = 100

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Extra 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := s.jobOptions(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	job := pipeline.NewJob(filename, data, opts)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted(job))
}

func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10<<20)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := s.jobOptions(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// A title names a single document.
	opts.Title = ""

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]map[string]any, 0, len(files))
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		if !parser.IsSupportedExtension(filename) {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)),
			})
			continue
		}

		data, err := s.readPart(fh)
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		job := pipeline.NewJob(filename, data, opts)
		if err := s.orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}
		results = append(results, accepted(job))
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("failed to open file")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil || int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, errors.New("file too large or read error")
	}
	return data, nil
}

// jobOptions reads the optional title, chunking and feature fields of an
// upload form.
func (s *Server) jobOptions(r *http.Request) (pipeline.JobOptions, error) {
	opts := pipeline.JobOptions{Title: strings.TrimSpace(r.FormValue("title"))}

	size, overlap := r.FormValue("chunk_size"), r.FormValue("overlap")
	if size != "" || overlap != "" {
		cfg := s.orchestrator.DefaultChunking()
		if size != "" {
			n, err := strconv.Atoi(size)
			if err != nil || n <= 0 {
				return opts, fmt.Errorf("invalid chunk_size %q", size)
			}
			cfg.ChunkSize = n
		}
		if overlap != "" {
			n, err := strconv.Atoi(overlap)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("invalid overlap %q", overlap)
			}
			cfg.Overlap = n
		}
		if cfg.Overlap >= cfg.ChunkSize {
			return opts, fmt.Errorf("overlap (%d) must be smaller than chunk_size (%d)", cfg.Overlap, cfg.ChunkSize)
		}
		opts.Chunking = &cfg
	}

	for id := range strings.SplitSeq(r.FormValue("features"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.Features = append(opts.Features, id)
		}
	}
	return opts, nil
}

func accepted(job *pipeline.Job) map[string]any {
	snap := job.Snapshot()
	return map[string]any{
		"filename": snap.Filename,
		"job_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/documents/%s/status", snap.ID),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// finishedResult looks up the job's result, writing an error response and
// returning nil when there is none yet.
func (s *Server) finishedResult(w http.ResponseWriter, r *http.Request) *pipeline.Result {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return nil
	}
	snap := job.Snapshot()
	if !snap.Status.Terminal() {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": snap.ID,
			"status": snap.Status,
			"phase":  snap.Phase,
		})
		return nil
	}
	res := job.Result()
	if res == nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "job produced no result",
			"status": snap.Status,
			"errors": snap.Progress.Errors,
		})
		return nil
	}
	return res
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	res := s.finishedResult(w, r)
	if res == nil {
		return
	}
	writeJSON(w, http.StatusOK, res.Document)
}

func (s *Server) handleGetTestbook(w http.ResponseWriter, r *http.Request) {
	res := s.finishedResult(w, r)
	if res == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"testbook":   res.Testbook,
		"validation": res.Report,
	})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	limit := defaultChunkListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.orchestrator.IndexedChunks(r.Context(), job, limit)
	if errors.Is(err, pipeline.ErrNoIndex) {
		jsonError(w, err.Error(), http.StatusNotImplemented)
		return
	}
	if err != nil {
		jsonError(w, "failed to list chunks: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": entries})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	found, err := s.orchestrator.Delete(r.Context(), jobID)
	if !found {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	resp := map[string]any{"job_id": jobID, "deleted": true}
	if err != nil {
		s.log.Warn("index cleanup failed", "job_id", jobID, "error", err)
		resp["index_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func sanitizeFilename(name string) string {
	// Keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
