// Package redisfeed publishes watcher quotes to Redis: a pub/sub message per update and a
// TTL'd snapshot per pair for late readers.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/internal/apperror"
)

// Config holds the Redis connection and key layout.
type Config struct {
	Addr        string
	DB          int
	Password    string
	Prefix      string
	SnapshotTTL time.Duration
}

// Snapshot is the wire form of one quote update.
type Snapshot struct {
	Pair            string `json:"pair"`
	Block           uint64 `json:"block,omitempty"`
	AtMs            int64  `json:"at_ms"`
	AmountIn        string `json:"amount_in"`
	Optimal         string `json:"optimal"`
	OptimalVenue    string `json:"optimal_venue,omitempty"`
	Executable      string `json:"executable"`
	ExecutableVenue string `json:"executable_venue,omitempty"`
	Pools           int    `json:"pools"`
	Rate            string `json:"rate"`
	Rejected        bool   `json:"rejected"`
	Error           string `json:"error,omitempty"`
	LatencyMs       int64  `json:"latency_ms"`
}

// FromUpdate converts a watcher update to its wire form.
func FromUpdate(u app.QuoteUpdate) Snapshot {
	return Snapshot{
		Pair:            u.Pair,
		Block:           u.Block,
		AtMs:            u.At.UnixMilli(),
		AmountIn:        u.AmountIn.ToDecimal().String(),
		Optimal:         u.Optimal.ToDecimal().String(),
		OptimalVenue:    string(u.OptimalVenue),
		Executable:      u.Executable.ToDecimal().String(),
		ExecutableVenue: string(u.ExecutableVenue),
		Pools:           u.Pools,
		Rate:            u.Rate.String(),
		Rejected:        u.Rejected,
		Error:           u.Err,
		LatencyMs:       u.Latency.Milliseconds(),
	}
}

// Publisher implements app.QuotePublisher over Redis.
type Publisher struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ app.QuotePublisher = (*Publisher)(nil)

// NewPublisher connects to Redis.
func NewPublisher(cfg Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return NewPublisherWithClient(rdb, cfg.Prefix, cfg.SnapshotTTL)
}

// NewPublisherWithClient wraps an existing client.
func NewPublisherWithClient(rdb *redis.Client, prefix string, ttl time.Duration) *Publisher {
	if prefix == "" {
		prefix = "quotes"
	}
	return &Publisher{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Channel is the pub/sub channel of pair.
func (p *Publisher) Channel(pair string) string { return p.prefix + ":" + pair }

func (p *Publisher) snapshotKey(pair string) string { return p.prefix + ":snapshot:" + pair }

func (p *Publisher) indexKey() string { return p.prefix + ":pairs" }

// Publish implements app.QuotePublisher.
func (p *Publisher) Publish(ctx context.Context, u app.QuoteUpdate) error {
	snap := FromUpdate(u)
	body, err := json.Marshal(snap)
	if err != nil {
		return apperror.New(apperror.CodeQuotePublishFailed, apperror.WithCause(err))
	}

	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.Channel(u.Pair), body)
		pipe.Set(ctx, p.snapshotKey(u.Pair), body, p.ttl)
		pipe.ZAdd(ctx, p.indexKey(), redis.Z{Score: float64(snap.AtMs), Member: u.Pair})
		return nil
	})
	if err != nil {
		return apperror.New(apperror.CodeQuotePublishFailed,
			apperror.WithCause(err),
			apperror.WithContext(u.Pair))
	}
	return nil
}

// Latest returns the last snapshot of pair.
func (p *Publisher) Latest(ctx context.Context, pair string) (Snapshot, error) {
	raw, err := p.rdb.Get(ctx, p.snapshotKey(pair)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, apperror.New(apperror.CodeNotFound, apperror.WithContext("no snapshot for "+pair))
	}
	if err != nil {
		return Snapshot{}, apperror.New(apperror.CodeServiceUnavailable, apperror.WithCause(err))
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", pair, err)
	}
	return snap, nil
}

// Pairs lists published pairs, most recently updated first.
func (p *Publisher) Pairs(ctx context.Context) ([]string, error) {
	pairs, err := p.rdb.ZRevRange(ctx, p.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, apperror.New(apperror.CodeServiceUnavailable, apperror.WithCause(err))
	}
	return pairs, nil
}

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
