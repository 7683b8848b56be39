package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// RedisLeaseStore implements store.LeaseStore with SET NX and Lua guards.
type RedisLeaseStore struct {
	client *redis.Client
}

var _ store.LeaseStore = (*RedisLeaseStore)(nil)

func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

func (s *RedisLeaseStore) makeKey(name string) string {
	return fmt.Sprintf("ke:lease:%s", name)
}

func (s *RedisLeaseStore) epochKey(name string) string {
	return fmt.Sprintf("ke:lease:%s:epoch", name)
}

func (s *RedisLeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	key := s.makeKey(name)

	success, err := s.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	if success {
		// Every fresh acquisition is a new term.
		if err := s.client.Incr(ctx, s.epochKey(name)).Err(); err != nil {
			return true, fmt.Errorf("failed to bump lease epoch: %w", err)
		}
		return true, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; the next round will take it.
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing lease: %w", err)
	}

	if val == holderID {
		return true, s.Renew(ctx, name, holderID, ttl)
	}

	return false, nil
}

const renewScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

func (s *RedisLeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	ttlMs := int64(ttl / time.Millisecond)

	res, err := s.client.Eval(ctx, renewScript, []string{s.makeKey(name)}, holderID, ttlMs).Result()
	if err != nil {
		return fmt.Errorf("failed to execute renew script: %w", err)
	}

	success, ok := res.(int64)
	if !ok {
		return fmt.Errorf("unexpected return type from renew script")
	}
	if success == 1 {
		return nil
	}
	return fmt.Errorf("renew %s as %s: %w", name, holderID, store.ErrLeaseLost)
}

// Release deletes the lease when holderID still holds it. Releasing a lease
// held by someone else, or by no one, is not an error.
func (s *RedisLeaseStore) Release(ctx context.Context, name, holderID string) error {
	if _, err := s.client.Eval(ctx, releaseScript, []string{s.makeKey(name)}, holderID).Result(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}

func (s *RedisLeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := s.makeKey(name)

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease ttl: %w", err)
	}

	epoch, err := s.client.Get(ctx, s.epochKey(name)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get lease epoch: %w", err)
	}

	return &store.Lease{
		Name:      name,
		HolderID:  val,
		ExpiresAt: time.Now().Add(ttl),
		Epoch:     epoch,
	}, nil
}
