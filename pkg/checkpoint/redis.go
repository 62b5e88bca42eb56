package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratumflow/stratum/pkg/models"
)

// RedisTier shares checkpoints across orchestrator processes through Redis.
// Entries carry a TTL so an abandoned instance does not pin memory; the
// durable tier below still holds the checkpoint after expiry.
type RedisTier struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisTier connects to Redis and verifies the connection.
func NewRedisTier(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisTier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisTier{client: client, ttl: ttl}, nil
}

// NewRedisTierWithClient wraps an existing client, for tests and shared pools.
func NewRedisTierWithClient(client redis.UniversalClient, ttl time.Duration) *RedisTier {
	return &RedisTier{client: client, ttl: ttl}
}

func (t *RedisTier) Name() string { return "redis" }

func checkpointKey(instanceID string) string {
	return "stratum:checkpoint:" + instanceID
}

// saveIfNewer keeps only the highest sequence per instance. Runs as a Lua
// script so concurrent writers cannot interleave between read and write.
var saveIfNewer = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current then
		local decoded = cjson.decode(current)
		if tonumber(decoded['sequence']) >= tonumber(ARGV[2]) then
			return 0
		end
	end
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
	return 1
`)

func (t *RedisTier) Save(ctx context.Context, cp *models.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	err = saveIfNewer.Run(ctx, t.client,
		[]string{checkpointKey(cp.InstanceID)},
		data, cp.Sequence, t.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}

	return nil
}

func (t *RedisTier) Latest(ctx context.Context, instanceID string) (*models.Checkpoint, error) {
	data, err := t.client.Get(ctx, checkpointKey(instanceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis tier instance %s: %w", instanceID, ErrRestoreMiss)
		}

		return nil, fmt.Errorf("failed to read checkpoint from redis: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return &cp, nil
}

func (t *RedisTier) Delete(ctx context.Context, instanceID string) error {
	if err := t.client.Del(ctx, checkpointKey(instanceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint from redis: %w", err)
	}

	return nil
}
