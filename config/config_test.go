package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_PORT", "REMOTERUN_TRANSPORT", "REMOTERUN_LOG_FILE", "REMOTERUN_ENGINE",
		"REMOTERUN_STAGING_ROOT", "REMOTERUN_REMOTE_ROOT", "REMOTERUN_SSH_USER",
		"REMOTERUN_SSH_KEY", "REMOTERUN_SSH_KNOWN_HOSTS", "REMOTERUN_PROFILE",
		"REDIS_HOST", "REDIS_PORT", "STORAGE_TYPE", "STORAGE_PATH", "STORAGE_BUCKET",
		"STORAGE_ENDPOINT", "STORAGE_ACCESS_KEY", "STORAGE_SECRET_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remoterun.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine != EngineShell {
		t.Fatalf("unexpected engine: %q", cfg.Engine)
	}
	if cfg.Wait.PollInterval != time.Second {
		t.Fatalf("unexpected poll interval: %v", cfg.Wait.PollInterval)
	}
	if cfg.Wait.MaxWait != 300*time.Second {
		t.Fatalf("unexpected max wait: %v", cfg.Wait.MaxWait)
	}
	if cfg.Wait.ProbeTimeout != time.Second {
		t.Fatalf("unexpected probe timeout: %v", cfg.Wait.ProbeTimeout)
	}
	if cfg.Server.Transport != "stdio" {
		t.Fatalf("unexpected transport: %q", cfg.Server.Transport)
	}
	if len(cfg.SSH.LocalHosts) != 2 {
		t.Fatalf("unexpected local hosts: %+v", cfg.SSH.LocalHosts)
	}
}

func TestWaitBudget(t *testing.T) {
	if got := WaitBudget(ProfileProduction); got != 300*time.Second {
		t.Fatalf("production budget: %v", got)
	}
	if got := WaitBudget(ProfileValidation); got != 10*time.Second {
		t.Fatalf("validation budget: %v", got)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
engine = "queue"
profile = "validation"
poll_interval = "250ms"
transport = "both"
local_hosts = [" localhost ", "", "devbox"]
redis_port = 6380
storage_type = "minio"
storage_endpoint = "minio:9000"
storage_bucket = "runs"
log_console = false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine != EngineQueue {
		t.Fatalf("unexpected engine: %q", cfg.Engine)
	}
	if cfg.Wait.MaxWait != 10*time.Second {
		t.Fatalf("validation profile should set max wait, got %v", cfg.Wait.MaxWait)
	}
	if cfg.Wait.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.Wait.PollInterval)
	}
	if cfg.Server.Transport != "both" {
		t.Fatalf("unexpected transport: %q", cfg.Server.Transport)
	}
	if len(cfg.SSH.LocalHosts) != 2 || cfg.SSH.LocalHosts[0] != "localhost" || cfg.SSH.LocalHosts[1] != "devbox" {
		t.Fatalf("unexpected local hosts: %+v", cfg.SSH.LocalHosts)
	}
	if cfg.Redis.Port != 6380 {
		t.Fatalf("unexpected redis port: %d", cfg.Redis.Port)
	}
	if cfg.Storage.Type != "minio" || cfg.Storage.Bucket != "runs" {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
	if cfg.Log.Console {
		t.Fatalf("expected console logging disabled")
	}
}

func TestExplicitMaxWaitBeatsProfile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
profile = "validation"
max_wait = "42s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Wait.MaxWait != 42*time.Second {
		t.Fatalf("unexpected max wait: %v", cfg.Wait.MaxWait)
	}
}

func TestEnvProfileKeepsExplicitMaxWait(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
max_wait = "42s"
`)
	t.Setenv("REMOTERUN_PROFILE", "validation")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Wait.Profile != ProfileValidation {
		t.Fatalf("unexpected profile: %q", cfg.Wait.Profile)
	}
	if cfg.Wait.MaxWait != 42*time.Second {
		t.Fatalf("explicit max_wait must survive the profile override: %v", cfg.Wait.MaxWait)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
engine = "queue"
redis_host = "redis-from-file"
`)
	t.Setenv("REDIS_HOST", "redis-from-env")
	t.Setenv("REDIS_PORT", "7000")
	t.Setenv("REMOTERUN_PROFILE", "validation")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Host != "redis-from-env" {
		t.Fatalf("unexpected redis host: %q", cfg.Redis.Host)
	}
	if cfg.Redis.Port != 7000 {
		t.Fatalf("unexpected redis port: %d", cfg.Redis.Port)
	}
	if cfg.Wait.Profile != ProfileValidation || cfg.Wait.MaxWait != 10*time.Second {
		t.Fatalf("unexpected wait config: %+v", cfg.Wait)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{name: "engine", body: `engine = "docker"`, want: "unknown engine"},
		{name: "profile", body: `profile = "staging"`, want: "unknown profile"},
		{name: "transport", body: `transport = "grpc"`, want: "unknown transport"},
		{name: "poll interval", body: `poll_interval = "0s"`, want: "poll_interval"},
		{name: "max wait", body: "poll_interval = \"5s\"\nmax_wait = \"1s\"", want: "max_wait"},
		{name: "duration syntax", body: `poll_interval = "soon"`, want: "parse poll_interval"},
		{name: "storage", body: "engine = \"queue\"\nstorage_type = \"ftp\"", want: "unknown storage type"},
		{name: "redis port", env: map[string]string{"REDIS_PORT": "redis"}, want: "REDIS_PORT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.body != "" {
				path = writeConfig(t, tc.body)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
