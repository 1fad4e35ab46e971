package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"ticket-bot/config"
)

type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func OpenRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	logger.Info("redis ticket store initialised", "addr", cfg.Addr, "prefix", cfg.Prefix)
	return NewRedisStore(rdb, cfg.Prefix), nil
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (r *RedisStore) key(channelID string) string {
	return r.prefix + channelID
}

func (r *RedisStore) Create(ctx context.Context, t Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, r.key(t.ChannelID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("setnx ticket: %w", err)
	}
	if !ok {
		return ErrTicketExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, channelID string) (Ticket, error) {
	return r.get(ctx, r.rdb, channelID)
}

func (r *RedisStore) get(ctx context.Context, c redis.Cmdable, channelID string) (Ticket, error) {
	data, err := c.Get(ctx, r.key(channelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return Ticket{}, fmt.Errorf("decode ticket %s: %w", channelID, err)
	}
	return t, nil
}

func (r *RedisStore) SetStatus(ctx context.Context, channelID string, status Status) error {
	key := r.key(channelID)
	return r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		t, err := r.get(ctx, tx, channelID)
		if err != nil {
			return err
		}
		t.Status = status
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
}

func (r *RedisStore) Delete(ctx context.Context, channelID string) error {
	n, err := r.rdb.Del(ctx, r.key(channelID)).Result()
	if err != nil {
		return fmt.Errorf("del ticket: %w", err)
	}
	if n == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]Ticket, error) {
	var out []Ticket
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		t, err := r.get(ctx, r.rdb, iter.Val()[len(r.prefix):])
		if errors.Is(err, ErrTicketNotFound) {
			// deleted between SCAN and GET
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan tickets: %w", err)
	}
	sortTickets(out)
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
