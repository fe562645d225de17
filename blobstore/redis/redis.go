// Package redis implements blobstore.Store on a Redis-compatible backend.
// Intended for test rigs and desktop builds where "device storage" is a
// local Redis; blobs are written without expiry since the journal must
// survive until explicitly acknowledged.
package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tradewire/offcache/blobstore"
)

var ErrNilClient = errors.New("redis store: nil client")

type Store struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ blobstore.Store = (*Store)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Store{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func (s *Store) Save(ctx context.Context, key string, blob []byte) error {
	// no TTL: journal blobs live until deleted
	return s.rdb.Set(ctx, key, blob, 0).Err()
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *Store) Close(_ context.Context) error {
	if s.closeClient {
		return s.rdb.Close()
	}
	return nil
}
