// Package redis stores metadata documents in Redis: one hash per collection
// holds the payloads and a sorted set scored by a per-collection counter
// keeps insertion order.
package redis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"scodata/internal/metadata/core"
)

// Compile-time contract assertion.
var _ core.Store = (*Store)(nil)

const (
	defaultAddr   = "localhost:6379"
	defaultPrefix = "scodata"
	pageSize      = 256
)

// Config configures the Redis driver.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key namespace, default "scodata"
}

// Store implements core.Store on Redis.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

// NewStore dials Redis and verifies the connection with PING.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb, prefix: cfg.Prefix}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverRedis }

// Close closes the client.
func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) docsKey(collection string) string  { return s.prefix + ":" + collection + ":docs" }
func (s *Store) orderKey(collection string) string { return s.prefix + ":" + collection + ":order" }
func (s *Store) seqKey(collection string) string   { return s.prefix + ":" + collection + ":seq" }

func (s *Store) Put(ctx context.Context, collection, id string, doc core.Document) error {
	if err := doc.Check(); err != nil {
		return err
	}
	seq, err := s.rdb.Incr(ctx, s.seqKey(collection)).Result()
	if err != nil {
		return fmt.Errorf("next seq %s: %w", collection, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, s.docsKey(collection), id, []byte(doc))
		// NX keeps the original position on overwrite
		p.ZAddNX(ctx, s.orderKey(collection), goredis.Z{Score: float64(seq), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (core.Document, error) {
	b, err := s.rdb.HGet(ctx, s.docsKey(collection), id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, core.NotFound(collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return core.Document(b), nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	var del *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		del = p.HDel(ctx, s.docsKey(collection), id)
		p.ZRem(ctx, s.orderKey(collection), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return del.Val() > 0, nil
}

// List walks the order set by score in pages and fetches payloads with HMGET.
func (s *Store) List(ctx context.Context, collection string, filter core.Filter) iter.Seq2[core.Document, error] {
	return func(yield func(core.Document, error) bool) {
		lo := "-inf"
		for {
			zs, err := s.rdb.ZRangeByScoreWithScores(ctx, s.orderKey(collection), &goredis.ZRangeBy{
				Min: lo, Max: "+inf", Count: pageSize,
			}).Result()
			if err != nil {
				yield(nil, fmt.Errorf("list %s: %w", collection, err))
				return
			}
			if len(zs) == 0 {
				return
			}
			ids := make([]string, len(zs))
			for i, z := range zs {
				ids[i] = fmt.Sprint(z.Member)
			}
			vals, err := s.rdb.HMGet(ctx, s.docsKey(collection), ids...).Result()
			if err != nil {
				yield(nil, fmt.Errorf("fetch %s: %w", collection, err))
				return
			}
			for _, v := range vals {
				str, ok := v.(string)
				if !ok {
					continue // deleted between the two reads
				}
				doc := core.Document(str)
				match, err := core.Match(doc, filter)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if match && !yield(doc, nil) {
					return
				}
			}
			if len(zs) < pageSize {
				return
			}
			lo = fmt.Sprintf("(%d", int64(zs[len(zs)-1].Score))
		}
	}
}

func (s *Store) Clear(ctx context.Context, collection string) error {
	if err := s.rdb.Del(ctx, s.docsKey(collection), s.orderKey(collection), s.seqKey(collection)).Err(); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}
