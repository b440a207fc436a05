package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"
	"github.com/ljbeal/MCP-remotemanager/models"
)

const (
	QueueKeyPrefix     = "execution_queue:"
	ResultKeyPrefix    = "result:"
	HeartbeatKeyPrefix = "worker:heartbeat:"
	ResultTTL          = 10 * time.Minute
	HeartbeatTTL       = 15 * time.Second
)

// QueueKey is the list a host's worker consumes. user@ and :port are dropped
// so a run addressed as user@box:22 reaches the worker started with -host box.
func QueueKey(host string) string {
	return QueueKeyPrefix + workerHost(host)
}

func ResultKey(runName string) string {
	return ResultKeyPrefix + runName
}

func HeartbeatKey(host string) string {
	return HeartbeatKeyPrefix + workerHost(host)
}

func workerHost(hostname string) string {
	_, host := splitUserHost(strings.TrimSpace(hostname))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return sanitizeHost(strings.ToLower(host))
}

type RedisService struct {
	client *redis.Client
}

func NewRedisService(host string, port int) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
	})
	return &RedisService{client: client}
}

func (r *RedisService) Close() error {
	return r.client.Close()
}

// PushExecutionRequest pushes an execution request to the specified queue
func (r *RedisService) PushExecutionRequest(ctx context.Context, queueKey string, req *models.ExecutionRequest) error {
	var err error
	xray.Capture(ctx, "Redis.LPush", func(ctx1 context.Context) error {
		jsonData, marshalErr := json.Marshal(req)
		if marshalErr != nil {
			err = marshalErr
			return marshalErr
		}
		err = r.client.LPush(ctx, queueKey, string(jsonData)).Err()

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.queue_key", queueKey)
			seg.AddMetadata("redis.operation", "LPUSH")
		}

		return err
	})
	return err
}

// PopExecutionRequest blocks up to timeout for the next request; nil when none arrived
func (r *RedisService) PopExecutionRequest(ctx context.Context, queueKey string, timeout time.Duration) (*models.ExecutionRequest, error) {
	result, err := r.client.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// result[0] is the queue key, result[1] is the data
	var req models.ExecutionRequest
	if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
		return nil, fmt.Errorf("decode execution request: %w", err)
	}
	return &req, nil
}

// ResultExists reports whether a run's result has been stored
func (r *RedisService) ResultExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	var finalErr error

	xray.Capture(ctx, "Redis.Exists", func(ctx1 context.Context) error {
		n, err := r.client.Exists(ctx, key).Result()
		if err != nil {
			finalErr = err
			return err
		}
		exists = n > 0

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", key)
			seg.AddMetadata("redis.operation", "EXISTS")
		}
		return nil
	})
	return exists, finalErr
}

// GetResult retrieves the execution result stored under key, nil when absent
func (r *RedisService) GetResult(ctx context.Context, key string) (*models.ExecutionResult, error) {
	var result *models.ExecutionResult
	var finalErr error

	xray.Capture(ctx, "Redis.Get", func(ctx1 context.Context) error {
		jsonData, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			finalErr = err
			return err
		}

		var execResult models.ExecutionResult
		if err := json.Unmarshal([]byte(jsonData), &execResult); err != nil {
			finalErr = err
			return err
		}
		result = &execResult

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", key)
			seg.AddMetadata("redis.operation", "GET")
		}

		return nil
	})

	return result, finalErr
}

// SetResult stores a run's result with ResultTTL
func (r *RedisService) SetResult(ctx context.Context, key string, res *models.ExecutionResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ResultTTL).Err()
}

// Heartbeat marks the worker for host as alive for HeartbeatTTL
func (r *RedisService) Heartbeat(ctx context.Context, host string) error {
	return r.client.Set(ctx, HeartbeatKey(host), time.Now().UTC().Format(time.RFC3339), HeartbeatTTL).Err()
}

// WorkerAlive reports whether host's worker refreshed its heartbeat recently
func (r *RedisService) WorkerAlive(ctx context.Context, host string) (bool, error) {
	var alive bool
	var finalErr error

	xray.Capture(ctx, "Redis.Exists", func(ctx1 context.Context) error {
		n, err := r.client.Exists(ctx, HeartbeatKey(host)).Result()
		if err != nil {
			finalErr = err
			return err
		}
		alive = n > 0

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", HeartbeatKey(host))
			seg.AddMetadata("redis.operation", "EXISTS")
		}
		return nil
	})
	return alive, finalErr
}

// Ping checks Redis connection
func (r *RedisService) Ping(ctx context.Context) error {
	var err error
	xray.Capture(ctx, "Redis.Ping", func(ctx1 context.Context) error {
		err = r.client.Ping(ctx).Err()

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.operation", "PING")
		}

		return err
	})
	return err
}

// HeartbeatProbe validates a host by its queue worker's heartbeat
type HeartbeatProbe struct {
	redis   *RedisService
	timeout time.Duration
}

func NewHeartbeatProbe(redis *RedisService, timeout time.Duration) *HeartbeatProbe {
	return &HeartbeatProbe{redis: redis, timeout: timeout}
}

func (p *HeartbeatProbe) Probe(ctx context.Context, hostname string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	alive, err := p.redis.WorkerAlive(ctx, hostname)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", p.timeout)
		}
		return &ConnectivityError{Host: hostname, Err: err}
	}
	if !alive {
		return &ConnectivityError{Host: hostname, Err: fmt.Errorf("no worker heartbeat for %s", hostname)}
	}
	return nil
}
