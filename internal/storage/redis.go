package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	logx "eventsched/pkg/logx"

	"github.com/go-redis/redis/v8"
)

const redisUpdateAttempts = 5

// redisStore keeps each collection in one hash: <prefix>:<collection> -> id -> json.
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger

	// beforeCommit runs between the watched read and MULTI; tests use it
	// to write the hash from outside the transaction.
	beforeCommit func()
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	prefix := strings.TrimSpace(cfg.Redis.Prefix)
	if prefix == "" {
		prefix = "eventsched"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &redisStore{client: client, prefix: prefix, log: log}, nil
}

func (s *redisStore) key(collection string) string { return s.prefix + ":" + collection }

func (s *redisStore) Close() error { return s.client.Close() }

func (s *redisStore) Create(ctx context.Context, collection, id string, record any) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	doc, err := encodeRecord(record)
	if err != nil {
		return err
	}
	ok, err := s.client.HSetNX(ctx, s.key(collection), id, string(doc)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrExists)
	}
	return nil
}

// Update runs an optimistic WATCH/MULTI read-merge-write, retrying
// when another writer touched the collection hash in between.
func (s *redisStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	key := s.key(collection)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, id).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		doc, err := mergePatch(json.RawMessage(cur), patch)
		if err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit()
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, id, string(doc))
			return nil
		})
		return err
	}

	for i := 0; i < redisUpdateAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug("redis update conflict; retrying", logx.String("collection", collection), logx.String("id", id))
			continue
		}
		return err
	}
	return fmt.Errorf("%s/%s: update conflict after %d attempts", collection, id, redisUpdateAttempts)
}

func (s *redisStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	v, err := s.client.HGet(ctx, s.key(collection), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(v), nil
}

func (s *redisStore) Delete(ctx context.Context, collection, id string) error {
	return s.client.HDel(ctx, s.key(collection), id).Err()
}

func (s *redisStore) Query(ctx context.Context, collection string, pred Predicate) ([]json.RawMessage, error) {
	all, err := s.client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, json.RawMessage(all[id]))
	}
	return filterDocs(docs, pred), nil
}
