package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/models"
)

// ResultStore is the part of Redis the queue engine needs
type ResultStore interface {
	PushExecutionRequest(ctx context.Context, queueKey string, req *models.ExecutionRequest) error
	ResultExists(ctx context.Context, key string) (bool, error)
	GetResult(ctx context.Context, key string) (*models.ExecutionResult, error)
}

// QueueEngine stages artifacts in a StorageService and enqueues the run for the
// worker that serves the target host; the worker stores the result in Redis.
type QueueEngine struct {
	storage StorageService
	results ResultStore
	log     zerolog.Logger
}

func NewQueueEngine(storage StorageService, results ResultStore, logger zerolog.Logger) *QueueEngine {
	return &QueueEngine{storage: storage, results: results, log: logger}
}

func (e *QueueEngine) Name() string { return "queue" }

func (e *QueueEngine) Submit(ctx context.Context, spec RunSpec) (*models.ExecutionHandle, error) {
	names := make([]string, 0, len(spec.Artifacts))
	for name := range spec.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	keys := make(map[string]string, len(names))
	for _, name := range names {
		key := ArtifactKey(spec.Name, name)
		if err := e.storage.SaveArtifact(ctx, key, spec.Artifacts[name]); err != nil {
			return nil, fmt.Errorf("save artifact %s: %w", key, err)
		}
		keys[name] = key
	}

	req := &models.ExecutionRequest{
		RunName:     spec.Name,
		Host:        spec.Host,
		Artifacts:   keys,
		ResultKey:   ResultKey(spec.Name),
		SubmittedAt: time.Now().Unix(),
	}
	queue := QueueKey(spec.Host)
	if err := e.results.PushExecutionRequest(ctx, queue, req); err != nil {
		return nil, fmt.Errorf("enqueue run on %s: %w", queue, err)
	}
	e.log.Info().Str("run", spec.Name).Str("queue", queue).Msg("run enqueued")

	return &models.ExecutionHandle{
		RunName:   spec.Name,
		Host:      spec.Host,
		Engine:    e.Name(),
		ResultKey: req.ResultKey,
	}, nil
}

func (e *QueueEngine) IsFinished(ctx context.Context, handle *models.ExecutionHandle) (bool, error) {
	return e.results.ResultExists(ctx, handle.ResultKey)
}

func (e *QueueEngine) FetchResult(ctx context.Context, handle *models.ExecutionHandle) (models.RunOutcome, error) {
	res, err := e.results.GetResult(ctx, handle.ResultKey)
	if err != nil {
		return models.RunOutcome{}, err
	}
	if res == nil {
		return models.RunOutcome{}, fmt.Errorf("result %s expired or missing", handle.ResultKey)
	}
	return res.Outcome(), nil
}
