// Package service binds the bounded queue, the generation pipeline, the
// adapter registry and the session output directory into the facade the HTTP
// layer talks to.
package service

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signsmith/internal/imagegen"
	"signsmith/internal/infra"
	"signsmith/internal/lora"
	"signsmith/internal/metrics"
	"signsmith/internal/queue"
	"signsmith/internal/storage"
)

const janitorInterval = 10 * time.Minute

// Receipt acknowledges an accepted submission.
type Receipt struct {
	ItemID string       `json:"item_id"`
	Status queue.Status `json:"status"`
}

// QueueStatusView extends the queue snapshot with session and pipeline info.
type QueueStatusView struct {
	queue.StatusView
	SessionID string         `json:"session_id"`
	Pipeline  map[string]any `json:"pipeline"`
}

// Service orchestrates generation requests for one process session. Outputs
// land under {runs_dir}/{session_id}/ as images plus JSONL request and
// metadata logs.
type Service struct {
	cfg      *infra.Config
	logger   zerolog.Logger
	pipeline *imagegen.Pipeline
	adapters *lora.Registry
	store    *storage.FileStore
	queue    *queue.Queue

	sessionID string

	mu          sync.Mutex
	started     bool
	janitorStop chan struct{}
}

// New wires a service from explicitly constructed dependencies.
func New(cfg *infra.Config, logger zerolog.Logger, pipeline *imagegen.Pipeline, adapters *lora.Registry, store *storage.FileStore) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		logger:    logger,
		pipeline:  pipeline,
		adapters:  adapters,
		store:     store,
		sessionID: uuid.NewString()[:8],
	}
	q, err := queue.New(cfg.Queue.MaxSize, cfg.Queue.StopTimeout(), s.process, logger)
	if err != nil {
		return nil, err
	}
	s.queue = q
	return s, nil
}

// SessionID identifies this process run in output paths and URLs.
func (s *Service) SessionID() string {
	return s.sessionID
}

// Start launches the queue worker and, when loadModel is set, warms up the
// generation backend in the background. Requests submitted before the load
// finishes queue up and block inside the first processed job. Idempotent.
func (s *Service) Start(loadModel bool) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.janitorStop = make(chan struct{})
	s.mu.Unlock()

	s.queue.Start()
	go s.janitor(s.janitorStop)

	if loadModel {
		go func() {
			if err := s.pipeline.Load(); err != nil {
				s.logger.Error().Err(err).Msg("service: deferred backend load failed")
				return
			}
			s.logger.Info().Msg("service: fully initialized")
		}()
		s.logger.Info().Str("session_id", s.sessionID).Msg("service: started, loading backend")
	} else {
		s.logger.Info().Str("session_id", s.sessionID).Msg("service: started without backend load")
	}
}

// Stop shuts down the worker (bounded wait) and releases the backend.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.janitorStop)
	s.mu.Unlock()

	s.queue.Stop()
	s.pipeline.Unload()
	s.logger.Info().Msg("service: stopped")
}

// Submit validates nothing itself (the HTTP layer owns request validation)
// and enqueues the job. The request log write is best-effort: a failed log
// line never fails an accepted submission.
func (s *Service) Submit(req imagegen.GenerateRequest) (Receipt, error) {
	snap, err := s.queue.Submit(req)
	if err != nil {
		return Receipt{}, err
	}
	if err := s.store.AppendJSONL(path.Join(s.sessionID, "requests.jsonl"), map[string]any{
		"item_id": snap.ID,
		"request": req,
	}); err != nil {
		s.logger.Warn().Err(err).Str("item_id", snap.ID).Msg("service: request log failed")
	}
	return Receipt{ItemID: snap.ID, Status: snap.Status}, nil
}

// GetStatus returns the job snapshot, or false for an unknown id.
func (s *Service) GetStatus(id string) (queue.Snapshot, bool) {
	return s.queue.Get(id)
}

// GetResult returns the result payload. False covers both "unknown id" and
// "not finished yet"; callers distinguish the two via GetStatus.
func (s *Service) GetResult(id string) (map[string]any, bool) {
	return s.queue.Result(id)
}

// Cancel withdraws a job that has not started processing yet.
func (s *Service) Cancel(id string) bool {
	return s.queue.Cancel(id)
}

// ImagePNG returns the stored image bytes for a completed job.
func (s *Service) ImagePNG(id string) ([]byte, bool) {
	if _, ok := s.queue.Result(id); !ok {
		return nil, false
	}
	data, err := s.store.ReadFile(path.Join(s.sessionID, "images", id+".png"))
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", id).Msg("service: image read failed")
		return nil, false
	}
	return data, true
}

// SessionFile serves a stored file from a session's images directory.
func (s *Service) SessionFile(sessionID, filename string) ([]byte, error) {
	return s.store.ReadFile(path.Join(sessionID, "images", filename))
}

// QueueStatus reports the combined queue, session and pipeline view.
func (s *Service) QueueStatus() QueueStatusView {
	pipeline := s.pipeline.Status()
	pipeline["base_path"] = s.cfg.Model.BasePath
	return QueueStatusView{
		StatusView: s.queue.Status(),
		SessionID:  s.sessionID,
		Pipeline:   pipeline,
	}
}

// Cleanup removes terminal jobs older than the configured age.
func (s *Service) Cleanup() int {
	return s.queue.RemoveOlderThan(s.cfg.Queue.CleanupAge())
}

func (s *Service) janitor(stop chan struct{}) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if removed := s.Cleanup(); removed > 0 {
				s.logger.Debug().Int("removed", removed).Msg("service: cleaned up old jobs")
			}
		}
	}
}

// process is the worker-loop callback. It resolves adapters, runs the
// generation, persists the image and appends the metadata record. Request
// latency and terminal status are tracked here for every job.
func (s *Service) process(job queue.Job, progress func(step, total int)) (map[string]any, error) {
	start := time.Now()
	result, err := s.processItem(job, progress)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	metrics.TrackRequest(status, time.Since(start).Seconds())
	return result, err
}

func (s *Service) processItem(job queue.Job, progress func(step, total int)) (map[string]any, error) {
	ctx := context.Background()
	req := job.Request

	if len(req.Adapters) > 0 {
		normalize := req.NormalizeWeights == nil || *req.NormalizeWeights
		names, weights, paths, err := s.adapters.Prepare(req.Adapters, req.AdapterWeights, normalize)
		if err != nil {
			return nil, fmt.Errorf("prepare adapters: %w", err)
		}
		for i, name := range names {
			s.pipeline.LoadAdapter(name, paths[i])
		}
		if err := s.pipeline.SetAdapters(names, weights); err != nil {
			return nil, fmt.Errorf("set adapters: %w", err)
		}
	}

	result, err := s.pipeline.Generate(ctx, req, progress)
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}

	imageKey := path.Join(s.sessionID, "images", job.ID+".png")
	savedKey, err := s.store.Write(ctx, imageKey, result.PNG)
	if err != nil {
		return nil, fmt.Errorf("persist image: %w", err)
	}

	imageURL := fmt.Sprintf("/runs/%s/images/%s.png", s.sessionID, job.ID)
	metadata := result.Metadata()
	metadata["item_id"] = job.ID
	metadata["image_path"] = savedKey
	if err := s.store.AppendJSONL(path.Join(s.sessionID, "metadata.jsonl"), metadata); err != nil {
		// Metadata logging is best-effort; the job already succeeded.
		s.logger.Warn().Err(err).Str("item_id", job.ID).Msg("service: metadata log failed")
	}

	metrics.TrackGeneration(result.Steps, result.Width, result.Height, result.Adapters)

	payload := map[string]any{
		"image_path": savedKey,
		"image_url":  imageURL,
	}
	for k, v := range metadata {
		payload[k] = v
	}
	return payload, nil
}
