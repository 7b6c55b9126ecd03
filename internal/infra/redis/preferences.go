package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const prefKeyPrefix = "bulkops:prefs"

// PreferenceRepo implements storage.PreferenceStore on Redis hashes,
// one hash per operator.
type PreferenceRepo struct {
	client *Client
}

// NewPreferenceRepo creates a Redis-backed preference store.
func NewPreferenceRepo(client *Client) *PreferenceRepo {
	return &PreferenceRepo{client: client}
}

// Get returns the stored value, or "" when the key was never set.
func (r *PreferenceRepo) Get(ctx context.Context, actorID, key string) (string, error) {
	val, err := r.client.rdb.HGet(ctx, prefKey(actorID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return val, nil
}

// Set stores an operator preference.
func (r *PreferenceRepo) Set(ctx context.Context, actorID, key, value string) error {
	if err := r.client.rdb.HSet(ctx, prefKey(actorID), key, value).Err(); err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

func prefKey(actorID string) string {
	return prefKeyPrefix + ":" + actorID
}
