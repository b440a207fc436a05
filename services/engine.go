package services

import (
	"context"

	"github.com/ljbeal/MCP-remotemanager/models"
)

// RunSpec is one staged unit of work handed to an engine
type RunSpec struct {
	Name      string
	Host      string
	LocalDir  string
	Artifacts map[string][]byte
}

// Engine stages, launches and observes remote runs.
// Submit returns once the run is accepted, not once it finished.
type Engine interface {
	Name() string
	Submit(ctx context.Context, spec RunSpec) (*models.ExecutionHandle, error)
	IsFinished(ctx context.Context, handle *models.ExecutionHandle) (bool, error)
	FetchResult(ctx context.Context, handle *models.ExecutionHandle) (models.RunOutcome, error)
}
