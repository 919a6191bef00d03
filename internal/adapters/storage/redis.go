package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

const redisKeyPrefix = "polydesk:doc:"

// RedisStore implementa ports.DocumentStore sobre un hash de Redis por clave
// (campos version, body, updated_at). Put usa WATCH/MULTI: si otro cliente
// toca la clave entre la lectura y el EXEC la transacción falla y se
// devuelve domain.ErrConcurrency.
type RedisStore struct {
	rdb *redis.Client
}

var _ ports.DocumentStore = (*RedisStore)(nil)

// NewRedisStore parsea url (redis://...) y verifica la conexión con PING.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("storage.NewRedisStore: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, domain.Persistence("storage.NewRedisStore: ping", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreFromClient envuelve un cliente ya configurado.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

// Get devuelve el documento de key.
func (s *RedisStore) Get(ctx context.Context, key string) (ports.Document, error) {
	fields, err := s.rdb.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return ports.Document{}, domain.Persistence("storage.RedisStore.Get", err)
	}
	if len(fields) == 0 {
		return ports.Document{}, domain.NotFoundf("document", key)
	}
	return decodeRedisDocument(key, fields)
}

// Put reemplaza el documento si su versión es expectedVersion.
func (s *RedisStore) Put(ctx context.Context, key string, body []byte, expectedVersion int64) (int64, error) {
	k := redisKey(key)
	next := expectedVersion + 1

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, k, "version").Int64()
		switch {
		case errors.Is(err, redis.Nil):
			current = 0
		case err != nil:
			return domain.Persistence("storage.RedisStore.Put: read version", err)
		}
		if current != expectedVersion {
			return fmt.Errorf("%w: %s is at version %d, expected %d",
				domain.ErrConcurrency, key, current, expectedVersion)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k,
				"version", next,
				"body", body,
				"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	}, k)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, redis.TxFailedErr):
		return 0, fmt.Errorf("%w: %s modified concurrently", domain.ErrConcurrency, key)
	case errors.Is(err, domain.ErrConcurrency), errors.Is(err, domain.ErrPersistence):
		return 0, err
	default:
		return 0, domain.Persistence("storage.RedisStore.Put", err)
	}
}

// Close cierra el cliente.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func decodeRedisDocument(key string, fields map[string]string) (ports.Document, error) {
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return ports.Document{}, domain.Persistence("storage.RedisStore: parse version of "+key, err)
	}
	doc := ports.Document{Key: key, Version: version, Body: []byte(fields["body"])}
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return doc, nil
}
