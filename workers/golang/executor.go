package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/models"
	"github.com/ljbeal/MCP-remotemanager/services"
)

const DefaultExecutionTimeout = 300 * time.Second

// ArtifactStore is the part of the storage service the executor reads from
type ArtifactStore interface {
	GetArtifact(ctx context.Context, key string) ([]byte, error)
	DeleteArtifact(ctx context.Context, key string) error
}

// Executor materialises a queued run in a sandbox directory and runs its run.sh
type Executor struct {
	store       ArtifactStore
	sandboxRoot string
	timeout     time.Duration
	log         zerolog.Logger
}

func NewExecutor(store ArtifactStore, sandboxRoot string, timeout time.Duration, logger zerolog.Logger) *Executor {
	if sandboxRoot == "" {
		sandboxRoot = filepath.Join(os.TempDir(), "remoterun-sandbox")
	}
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}
	return &Executor{store: store, sandboxRoot: sandboxRoot, timeout: timeout, log: logger}
}

// Execute always returns a result; failures are reported through its status
func (e *Executor) Execute(ctx context.Context, req *models.ExecutionRequest) *models.ExecutionResult {
	start := time.Now()
	res := e.execute(ctx, req)
	res.RunName = req.RunName
	if res.DurationMs == 0 {
		res.DurationMs = time.Since(start).Milliseconds()
	}
	e.cleanup(ctx, req)
	return res
}

func (e *Executor) execute(ctx context.Context, req *models.ExecutionRequest) *models.ExecutionResult {
	workDir := filepath.Join(e.sandboxRoot, uuid.New().String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return failed(fmt.Sprintf("Failed to create work directory: %v", err))
	}
	defer os.RemoveAll(workDir)

	names := make([]string, 0, len(req.Artifacts))
	for name := range req.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if filepath.Base(name) != name {
			return failed(fmt.Sprintf("Invalid artifact name %q", name))
		}
		data, err := e.store.GetArtifact(ctx, req.Artifacts[name])
		if err != nil {
			return failed(fmt.Sprintf("Failed to fetch artifact %s: %v", name, err))
		}
		if err := os.WriteFile(filepath.Join(workDir, name), data, 0644); err != nil {
			return failed(fmt.Sprintf("Failed to write %s: %v", name, err))
		}
	}
	if _, ok := req.Artifacts[services.ScriptFile]; !ok {
		return failed("run has no " + services.ScriptFile)
	}

	timeout := e.timeout
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", services.ScriptFile)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"GOCACHE="+filepath.Join(os.TempDir(), "gocache"),
		"GOPATH="+filepath.Join(os.TempDir(), "gopath"),
	)
	cmd.WaitDelay = 5 * time.Second

	e.log.Debug().Str("run", req.RunName).Str("dir", workDir).Dur("timeout", timeout).Msg("starting run")
	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return failed(fmt.Sprintf("Execution timed out after %v", timeout))
	}
	if err != nil {
		e.log.Warn().Str("run", req.RunName).Err(err).Msg("run script failed")
	}

	stderr := readFile(filepath.Join(workDir, services.StderrFile))
	data, readErr := os.ReadFile(filepath.Join(workDir, services.ResultFile))
	if readErr != nil {
		exitCode := -1
		if v, convErr := strconv.Atoi(strings.TrimSpace(readFile(filepath.Join(workDir, services.ExitCodeFile)))); convErr == nil {
			exitCode = v
		}
		res := failed(services.RunnerFailureDetail(exitCode, stderr))
		res.Logs = stderr
		return res
	}

	var res models.ExecutionResult
	if err := json.Unmarshal(bytes.TrimSpace(data), &res); err != nil {
		return failed(fmt.Sprintf("Failed to decode %s: %v", services.ResultFile, err))
	}
	res.Logs = stderr
	return &res
}

func (e *Executor) cleanup(ctx context.Context, req *models.ExecutionRequest) {
	for name, key := range req.Artifacts {
		if err := e.store.DeleteArtifact(ctx, key); err != nil {
			e.log.Warn().Str("run", req.RunName).Str("artifact", name).Err(err).Msg("delete artifact failed")
		}
	}
}

func failed(msg string) *models.ExecutionResult {
	return &models.ExecutionResult{Status: models.StatusError, ErrorMessage: msg}
}

func readFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
