package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// RedisStore provides a Redis-backed implementation of Store. Entries live in
// hashes with value, visible and version fields; writes are announced on a
// notification channel per key.
type RedisStore struct {
	mu       sync.Mutex
	client   *redis.Client
	options  *redis.Options
	logger   *log.Logger
	prefix   string
	notifKey string
}

// NewRedisStore returns a new RedisStore. Keys are namespaced with prefix.
func NewRedisStore(opts *redis.Options, prefix string, logger *log.Logger) *RedisStore {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisStore{
		client:   redis.NewClient(opts),
		options:  opts,
		logger:   logger,
		prefix:   prefix + "var:",
		notifKey: prefix + "monitor:",
	}
}

// ensureConnection pings Redis and reconnects if needed.
func (s *RedisStore) ensureConnection(ctx context.Context) *redis.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Println("blackboard reconnecting to Redis", err)
		s.client = redis.NewClient(s.options)
	}
	return s.client
}

// Put stores a value and returns the new version.
func (s *RedisStore) Put(ctx context.Context, key string, value interface{}, visible bool) (int64, error) {
	client := s.ensureConnection(ctx)
	data, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	hkey := s.prefix + key
	var ver int64
	err = client.Watch(ctx, func(tx *redis.Tx) error {
		res, err := tx.HGet(ctx, hkey, "version").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		ver = res + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hkey, "value", data, "visible", strconv.FormatBool(visible), "version", ver)
			return nil
		})
		return err
	}, hkey)
	if err != nil {
		return 0, err
	}
	upd := core.VariableUpdate{Key: key, Value: value, Visible: visible}
	payload, _ := json.Marshal(upd)
	if err := client.Publish(ctx, s.notifKey+key, payload).Err(); err != nil {
		return ver, err
	}
	return ver, nil
}

// Get retrieves the last update for key and its version.
func (s *RedisStore) Get(ctx context.Context, key string) (core.VariableUpdate, int64, error) {
	client := s.ensureConnection(ctx)
	res, err := client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return core.VariableUpdate{}, 0, err
	}
	if len(res) == 0 {
		return core.VariableUpdate{}, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	upd := core.VariableUpdate{Key: key}
	if err := json.Unmarshal([]byte(res["value"]), &upd.Value); err != nil {
		return core.VariableUpdate{}, 0, err
	}
	upd.Visible, _ = strconv.ParseBool(res["visible"])
	ver, err := parseInt(res["version"])
	if err != nil {
		return core.VariableUpdate{}, 0, err
	}
	return upd, ver, nil
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// Txn performs multiple puts atomically. It seeds the monitors of a run.
func (s *RedisStore) Txn(ctx context.Context, updates []core.VariableUpdate) error {
	client := s.ensureConnection(ctx)
	pipe := client.TxPipeline()
	for _, upd := range updates {
		data, err := json.Marshal(upd.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", upd.Key, err)
		}
		k := s.prefix + upd.Key
		pipe.HIncrBy(ctx, k, "version", 1)
		pipe.HSet(ctx, k, "value", data, "visible", strconv.FormatBool(upd.Visible))
		payload, _ := json.Marshal(upd)
		pipe.Publish(ctx, s.notifKey+upd.Key, payload)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Watch subscribes to updates of keys matching a glob pattern.
func (s *RedisStore) Watch(ctx context.Context, pattern string) (<-chan core.VariableUpdate, error) {
	client := s.ensureConnection(ctx)
	pubsub := client.PSubscribe(ctx, s.notifKey+pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}
	ch := make(chan core.VariableUpdate)
	go func() {
		defer close(ch)
		defer pubsub.Close()
		stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
		defer stop()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				s.logger.Println("blackboard watch error", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			var upd core.VariableUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
				s.logger.Println("blackboard decode error", err)
				continue
			}
			select {
			case ch <- upd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Delete removes a key from the store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	client := s.ensureConnection(ctx)
	return client.Del(ctx, s.prefix+key).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
