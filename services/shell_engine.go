package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/models"
)

const (
	shellCommandTimeout = 30 * time.Second
	shellPollTimeout    = 10 * time.Second
	shellMaxAttempts    = 1
)

// ShellEngine stages a run into a directory on the host over the transport,
// launches run.sh in the background and watches for its exit_code marker.
type ShellEngine struct {
	connector  *Connector
	remoteRoot string
	log        zerolog.Logger
}

func NewShellEngine(connector *Connector, remoteRoot string, logger zerolog.Logger) *ShellEngine {
	if remoteRoot == "" {
		remoteRoot = ".remoterun"
	}
	return &ShellEngine{connector: connector, remoteRoot: remoteRoot, log: logger}
}

func (e *ShellEngine) Name() string { return "shell" }

func (e *ShellEngine) Submit(ctx context.Context, spec RunSpec) (*models.ExecutionHandle, error) {
	conn, err := e.connector.Open(spec.Host)
	if err != nil {
		return nil, err
	}

	dir := path.Join(e.remoteRoot, spec.Name)
	if _, err := conn.Cmd(ctx, "mkdir -p "+shellEscape(dir), nil, shellCommandTimeout, shellMaxAttempts); err != nil {
		return nil, fmt.Errorf("create remote staging dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(spec.Artifacts))
	for name := range spec.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		target := path.Join(dir, name)
		if _, err := conn.Cmd(ctx, "cat > "+shellEscape(target), spec.Artifacts[name], shellCommandTimeout, shellMaxAttempts); err != nil {
			return nil, fmt.Errorf("transfer %s: %w", name, err)
		}
		e.log.Debug().Str("run", spec.Name).Str("file", target).Int("bytes", len(spec.Artifacts[name])).Msg("artifact transferred")
	}

	launch := fmt.Sprintf("cd %s && nohup sh %s > /dev/null 2>&1 < /dev/null &", shellEscape(dir), ScriptFile)
	if _, err := conn.Cmd(ctx, launch, nil, shellCommandTimeout, shellMaxAttempts); err != nil {
		return nil, fmt.Errorf("launch run: %w", err)
	}
	e.log.Info().Str("run", spec.Name).Str("host", spec.Host).Str("remote_dir", dir).Msg("run launched")

	return &models.ExecutionHandle{
		RunName:   spec.Name,
		Host:      spec.Host,
		Engine:    e.Name(),
		RemoteDir: dir,
	}, nil
}

func (e *ShellEngine) IsFinished(ctx context.Context, handle *models.ExecutionHandle) (bool, error) {
	conn, err := e.connector.Open(handle.Host)
	if err != nil {
		return false, err
	}
	marker := path.Join(handle.RemoteDir, ExitCodeFile)
	out, err := conn.Cmd(ctx, fmt.Sprintf("if [ -f %s ]; then echo done; else echo pending; fi", shellEscape(marker)), nil, shellPollTimeout, shellMaxAttempts)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "done", nil
}

func (e *ShellEngine) FetchResult(ctx context.Context, handle *models.ExecutionHandle) (models.RunOutcome, error) {
	conn, err := e.connector.Open(handle.Host)
	if err != nil {
		return models.RunOutcome{}, err
	}

	resultPath := path.Join(handle.RemoteDir, ResultFile)
	out, err := conn.Cmd(ctx, "cat "+shellEscape(resultPath), nil, shellCommandTimeout, shellMaxAttempts)
	if err == nil {
		var res models.ExecutionResult
		if err := json.Unmarshal([]byte(out), &res); err != nil {
			return models.RunOutcome{}, fmt.Errorf("decode %s: %w", resultPath, err)
		}
		return res.Outcome(), nil
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return models.RunOutcome{}, err
	}

	// no result.json: the program did not build or died before recording one
	return e.runnerFailure(ctx, conn, handle)
}

func (e *ShellEngine) runnerFailure(ctx context.Context, conn *Connection, handle *models.ExecutionHandle) (models.RunOutcome, error) {
	exitCode := -1
	codeOut, err := conn.Cmd(ctx, "cat "+shellEscape(path.Join(handle.RemoteDir, ExitCodeFile)), nil, shellCommandTimeout, shellMaxAttempts)
	if err == nil {
		if v, convErr := strconv.Atoi(strings.TrimSpace(codeOut)); convErr == nil {
			exitCode = v
		}
	}

	stderr, err := conn.Cmd(ctx, "cat "+shellEscape(path.Join(handle.RemoteDir, StderrFile)), nil, shellCommandTimeout, shellMaxAttempts)
	if err != nil {
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			return models.RunOutcome{}, err
		}
		stderr = ""
	}
	return models.Failure(RunnerFailureDetail(exitCode, stderr)), nil
}

// RunnerFailureDetail describes a run that finished without recording result.json
func RunnerFailureDetail(exitCode int, stderr string) string {
	detail := fmt.Sprintf("runner exited with status %d and produced no result", exitCode)
	if s := strings.TrimSpace(stderr); s != "" {
		detail += ": " + s
	}
	return detail
}
