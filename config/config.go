package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Engine names
const (
	EngineShell = "shell"
	EngineQueue = "queue"
)

// Deployment profiles select the completion wait budget
const (
	ProfileProduction = "production"
	ProfileValidation = "validation"
)

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Wait    WaitConfig
	Staging StagingConfig
	SSH     SSHConfig
	Engine  string
	Redis   RedisConfig
	Storage StorageConfig
}

type ServerConfig struct {
	Port      string
	Transport string
}

type LogConfig struct {
	File    string
	Console bool
	NoColor bool
}

type WaitConfig struct {
	Profile      string
	PollInterval time.Duration
	MaxWait      time.Duration
	ProbeTimeout time.Duration
}

type StagingConfig struct {
	LocalRoot  string
	RemoteRoot string
	GoBinary   string
}

type SSHConfig struct {
	User                        string
	Port                        string
	KeyPath                     string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	LocalHosts                  []string
}

type RedisConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	Type      string
	Path      string
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type fileConfig struct {
	Port          string   `toml:"port"`
	Transport     string   `toml:"transport"`
	LogFile       string   `toml:"log_file"`
	LogConsole    bool     `toml:"log_console"`
	LogNoColor    bool     `toml:"log_nocolor"`
	Profile       string   `toml:"profile"`
	PollInterval  string   `toml:"poll_interval"`
	MaxWait       string   `toml:"max_wait"`
	ProbeTimeout  string   `toml:"probe_timeout"`
	StagingRoot   string   `toml:"staging_root"`
	RemoteRoot    string   `toml:"remote_root"`
	GoBinary      string   `toml:"go_binary"`
	Engine        string   `toml:"engine"`
	SSHUser       string   `toml:"ssh_user"`
	SSHPort       string   `toml:"ssh_port"`
	SSHKeyPath    string   `toml:"ssh_key_path"`
	SSHKnownHosts string   `toml:"ssh_known_hosts"`
	SSHInsecure   bool     `toml:"ssh_insecure_skip_host_key_checking"`
	LocalHosts    []string `toml:"local_hosts"`
	RedisHost     string   `toml:"redis_host"`
	RedisPort     int      `toml:"redis_port"`
	StorageType   string   `toml:"storage_type"`
	StoragePath   string   `toml:"storage_path"`
	Bucket        string   `toml:"storage_bucket"`
	Endpoint      string   `toml:"storage_endpoint"`
	AccessKey     string   `toml:"storage_access_key"`
	SecretKey     string   `toml:"storage_secret_key"`
	Region        string   `toml:"storage_region"`
	UseSSL        bool     `toml:"storage_use_ssl"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:      "8080",
			Transport: "stdio",
		},
		Log: LogConfig{
			File:    "remoterun.log",
			Console: true,
		},
		Wait: WaitConfig{
			Profile:      ProfileProduction,
			PollInterval: time.Second,
			MaxWait:      WaitBudget(ProfileProduction),
			ProbeTimeout: time.Second,
		},
		Staging: StagingConfig{
			LocalRoot:  "staging",
			RemoteRoot: ".remoterun",
			GoBinary:   "go",
		},
		SSH: SSHConfig{
			Port:       "22",
			LocalHosts: []string{"localhost", "127.0.0.1"},
		},
		Engine: EngineShell,
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "/data/runs",
		},
	}
}

// WaitBudget returns the maximum completion wait for a deployment profile
func WaitBudget(profile string) time.Duration {
	if profile == ProfileValidation {
		return 10 * time.Second
	}
	return 300 * time.Second
}

// Load builds the configuration from defaults, an optional TOML file and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	fixedWait := false
	if strings.TrimSpace(path) != "" {
		var err error
		if fixedWait, err = applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, fixedWait); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFile reports whether the file set max_wait explicitly
func applyFile(cfg *Config, path string) (bool, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return false, fmt.Errorf("load config: %w", err)
	}

	str := func(key, v string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	str("port", raw.Port, &cfg.Server.Port)
	str("transport", raw.Transport, &cfg.Server.Transport)
	str("log_file", raw.LogFile, &cfg.Log.File)
	str("staging_root", raw.StagingRoot, &cfg.Staging.LocalRoot)
	str("remote_root", raw.RemoteRoot, &cfg.Staging.RemoteRoot)
	str("go_binary", raw.GoBinary, &cfg.Staging.GoBinary)
	str("engine", raw.Engine, &cfg.Engine)
	str("ssh_user", raw.SSHUser, &cfg.SSH.User)
	str("ssh_port", raw.SSHPort, &cfg.SSH.Port)
	str("ssh_key_path", raw.SSHKeyPath, &cfg.SSH.KeyPath)
	str("ssh_known_hosts", raw.SSHKnownHosts, &cfg.SSH.KnownHostsPath)
	str("redis_host", raw.RedisHost, &cfg.Redis.Host)
	str("storage_type", raw.StorageType, &cfg.Storage.Type)
	str("storage_path", raw.StoragePath, &cfg.Storage.Path)
	str("storage_bucket", raw.Bucket, &cfg.Storage.Bucket)
	str("storage_endpoint", raw.Endpoint, &cfg.Storage.Endpoint)
	str("storage_access_key", raw.AccessKey, &cfg.Storage.AccessKey)
	str("storage_secret_key", raw.SecretKey, &cfg.Storage.SecretKey)
	str("storage_region", raw.Region, &cfg.Storage.Region)

	if meta.IsDefined("log_console") {
		cfg.Log.Console = raw.LogConsole
	}
	if meta.IsDefined("log_nocolor") {
		cfg.Log.NoColor = raw.LogNoColor
	}
	if meta.IsDefined("ssh_insecure_skip_host_key_checking") {
		cfg.SSH.InsecureSkipHostKeyChecking = raw.SSHInsecure
	}
	if meta.IsDefined("local_hosts") {
		cfg.SSH.LocalHosts = normalizeList(raw.LocalHosts)
	}
	if meta.IsDefined("redis_port") {
		cfg.Redis.Port = raw.RedisPort
	}
	if meta.IsDefined("storage_use_ssl") {
		cfg.Storage.UseSSL = raw.UseSSL
	}

	// the profile sets the budget; an explicit max_wait still wins
	if meta.IsDefined("profile") {
		cfg.Wait.Profile = strings.TrimSpace(raw.Profile)
		cfg.Wait.MaxWait = WaitBudget(cfg.Wait.Profile)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll_interval", raw.PollInterval, &cfg.Wait.PollInterval},
		{"max_wait", raw.MaxWait, &cfg.Wait.MaxWait},
		{"probe_timeout", raw.ProbeTimeout, &cfg.Wait.ProbeTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return meta.IsDefined("max_wait"), nil
}

func applyEnv(cfg *Config, fixedWait bool) error {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Transport = getEnv("REMOTERUN_TRANSPORT", cfg.Server.Transport)
	cfg.Log.File = getEnv("REMOTERUN_LOG_FILE", cfg.Log.File)
	cfg.Engine = getEnv("REMOTERUN_ENGINE", cfg.Engine)
	cfg.Staging.LocalRoot = getEnv("REMOTERUN_STAGING_ROOT", cfg.Staging.LocalRoot)
	cfg.Staging.RemoteRoot = getEnv("REMOTERUN_REMOTE_ROOT", cfg.Staging.RemoteRoot)
	cfg.SSH.User = getEnv("REMOTERUN_SSH_USER", cfg.SSH.User)
	cfg.SSH.KeyPath = getEnv("REMOTERUN_SSH_KEY", cfg.SSH.KeyPath)
	cfg.SSH.KnownHostsPath = getEnv("REMOTERUN_SSH_KNOWN_HOSTS", cfg.SSH.KnownHostsPath)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.Path = getEnv("STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.Bucket = getEnv("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.AccessKey = getEnv("STORAGE_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = getEnv("STORAGE_SECRET_KEY", cfg.Storage.SecretKey)

	if v := os.Getenv("REDIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse REDIS_PORT: %w", err)
		}
		cfg.Redis.Port = port
	}
	if v := os.Getenv("REMOTERUN_PROFILE"); v != "" {
		cfg.Wait.Profile = strings.TrimSpace(v)
		if !fixedWait {
			cfg.Wait.MaxWait = WaitBudget(cfg.Wait.Profile)
		}
	}
	return nil
}

// Validate rejects settings the gateway cannot run with
func (c Config) Validate() error {
	switch c.Engine {
	case EngineShell, EngineQueue:
	default:
		return fmt.Errorf("unknown engine: %s", c.Engine)
	}
	switch c.Wait.Profile {
	case ProfileProduction, ProfileValidation:
	default:
		return fmt.Errorf("unknown profile: %s", c.Wait.Profile)
	}
	switch c.Server.Transport {
	case "stdio", "http", "both":
	default:
		return fmt.Errorf("unknown transport: %s", c.Server.Transport)
	}
	if c.Wait.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Wait.MaxWait < c.Wait.PollInterval {
		return fmt.Errorf("max_wait must be at least poll_interval")
	}
	if c.Wait.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}
	if strings.TrimSpace(c.Log.File) == "" {
		return fmt.Errorf("log_file is required")
	}
	if strings.TrimSpace(c.Staging.LocalRoot) == "" {
		return fmt.Errorf("staging_root is required")
	}
	if c.Engine == EngineQueue {
		switch c.Storage.Type {
		case "local", "s3", "minio":
		default:
			return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
