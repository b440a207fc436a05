package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/models"
)

// Dispatcher stages a validated run locally and submits it to the engine.
// Failures are returned as DispatchError and never retried.
type Dispatcher struct {
	engine      Engine
	stagingRoot string
	goBinary    string
	log         zerolog.Logger
}

func NewDispatcher(engine Engine, stagingRoot, goBinary string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, stagingRoot: stagingRoot, goBinary: goBinary, log: logger}
}

// Dispatch binds req to an ExecutionHandle once the engine accepted the run
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.RunRequest) (*models.ExecutionHandle, error) {
	name := req.Identity.Name

	artifacts, err := BuildArtifacts(req, d.goBinary)
	if err != nil {
		return nil, d.fail(name, err)
	}

	dir := filepath.Join(d.stagingRoot, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, d.fail(name, fmt.Errorf("create staging dir: %w", err))
	}
	req.StagingDir = dir

	names := make([]string, 0, len(artifacts))
	for file := range artifacts {
		names = append(names, file)
	}
	sort.Strings(names)
	for _, file := range names {
		if err := os.WriteFile(filepath.Join(dir, file), artifacts[file], 0644); err != nil {
			return nil, d.fail(name, fmt.Errorf("write %s: %w", file, err))
		}
	}
	d.log.Debug().Str("run", name).Str("staging_dir", dir).Strs("files", names).Msg("run staged")

	handle, err := d.engine.Submit(ctx, RunSpec{
		Name:      name,
		Host:      req.Host.Hostname,
		LocalDir:  dir,
		Artifacts: artifacts,
	})
	if err != nil {
		return nil, d.fail(name, err)
	}
	req.Handle = handle

	d.log.Info().Str("run", name).Str("engine", d.engine.Name()).Msg("run dispatched")
	return handle, nil
}

func (d *Dispatcher) fail(name string, err error) error {
	derr := &DispatchError{RunName: name, Err: err}
	d.log.Error().Str("run", name).Err(err).Msg("dispatch failed")
	return derr
}
