// Package redis provides a paging.Controller backed by Redis so that paging
// tokens issued by one replica can be redeemed on another.
//
// Each result set is stored as a list of JSON entries plus a metadata hash.
// Tokens are appended to an order list; when the list grows past capacity the
// oldest tokens are removed together with their keys.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for a Redis-backed Controller. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: PAGING_KEY_PREFIX
	KeyPrefix string `env:"PAGING_KEY_PREFIX,default=fhir:paging:"`
	// TTL bounds how long an unevicted result set lives. ENV: PAGING_TTL
	TTL time.Duration `env:"PAGING_TTL,default=1h"`

	Limits paging.Limits
}

// Controller implements paging.Controller on Redis.
type Controller struct {
	client    *redis.Client
	ownClient bool
	keyPrefix string
	ttl       time.Duration
	limits    paging.Limits
	log       *slog.Logger
}

var _ paging.Controller = (*Controller)(nil)

// New dials Redis and returns a Controller.
func New(ctx context.Context, cfg Config) (*Controller, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	c, err := NewWithClient(cl, cfg)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	c.ownClient = true
	return c, nil
}

// NewFromEnv builds a Controller using envdecode to populate Config. Limits
// default to paging.DefaultLimits.
func NewFromEnv(ctx context.Context) (*Controller, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	cfg.Limits = paging.DefaultLimits()
	return New(ctx, cfg)
}

// NewWithClient wraps an existing client. Close does not close cl.
func NewWithClient(cl *redis.Client, cfg Config) (*Controller, error) {
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "fhir:paging:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Controller{client: cl, keyPrefix: prefix, ttl: ttl, limits: cfg.Limits, log: slog.Default()}, nil
}

// WithLogger replaces the controller's logger.
func (c *Controller) WithLogger(l *slog.Logger) *Controller {
	if l != nil {
		c.log = l
	}
	return c
}

// --- Key helpers ---

func (c *Controller) orderKey() string { return c.keyPrefix + "order" }
func (c *Controller) entriesKey(tok paging.Token) string {
	return c.keyPrefix + "rs:" + string(tok) + ":entries"
}
func (c *Controller) metaKey(tok paging.Token) string {
	return c.keyPrefix + "rs:" + string(tok) + ":meta"
}

func (c *Controller) CreatePage(ctx context.Context, rs paging.ResultSet) (paging.Token, error) {
	tok := paging.Token(uuid.NewString())
	created := rs.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	values := make([]any, 0, len(rs.Entries))
	for i, e := range rs.Entries {
		b, err := json.Marshal(e)
		if err != nil {
			return "", fmt.Errorf("encode entry %d: %w", i, err)
		}
		values = append(values, b)
	}

	var overflow *redis.StringSliceCmd
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, c.metaKey(tok),
			"total", len(rs.Entries),
			"bundleType", rs.BundleType,
			"self", rs.SelfLink,
			"created", created.UTC().Format(time.RFC3339Nano),
		)
		p.Expire(ctx, c.metaKey(tok), c.ttl)
		if len(values) > 0 {
			p.RPush(ctx, c.entriesKey(tok), values...)
			p.Expire(ctx, c.entriesKey(tok), c.ttl)
		}
		p.RPush(ctx, c.orderKey(), string(tok))
		// Everything before the newest Capacity tokens is evicted.
		overflow = p.LRange(ctx, c.orderKey(), 0, int64(-c.limits.Capacity-1))
		p.LTrim(ctx, c.orderKey(), int64(-c.limits.Capacity), -1)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store result set: %w", err)
	}

	if evicted := overflow.Val(); len(evicted) > 0 {
		keys := make([]string, 0, 2*len(evicted))
		for _, old := range evicted {
			keys = append(keys, c.metaKey(paging.Token(old)), c.entriesKey(paging.Token(old)))
		}
		if err := c.client.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
			c.log.Warn("paging.evict.fail", slog.Int("count", len(evicted)), slog.String("err", err.Error()))
		}
	}
	return tok, nil
}

func (c *Controller) FetchPage(ctx context.Context, tok paging.Token, start, count int) (paging.Page, error) {
	// Membership in the order list is authoritative; keys of an evicted token
	// may briefly outlive its eviction.
	pos, err := c.client.LPos(ctx, c.orderKey(), string(tok), redis.LPosArgs{}).Result()
	if errors.Is(err, redis.Nil) || pos < 0 {
		return paging.Page{}, fmt.Errorf("%w: %s", paging.ErrTokenNotFound, tok)
	}
	if err != nil {
		return paging.Page{}, fmt.Errorf("lookup token: %w", err)
	}

	meta, err := c.client.HGetAll(ctx, c.metaKey(tok)).Result()
	if err != nil {
		return paging.Page{}, fmt.Errorf("load result set: %w", err)
	}
	if len(meta) == 0 {
		return paging.Page{}, fmt.Errorf("%w: %s", paging.ErrTokenNotFound, tok)
	}
	total, err := strconv.Atoi(meta["total"])
	if err != nil {
		return paging.Page{}, fmt.Errorf("corrupt result set %s: %w", tok, err)
	}

	lo, hi := c.limits.Window(total, start, count)
	entries := make([]fhir.Resource, 0, hi-lo)
	if hi > lo {
		raw, err := c.client.LRange(ctx, c.entriesKey(tok), int64(lo), int64(hi-1)).Result()
		if err != nil {
			return paging.Page{}, fmt.Errorf("load entries: %w", err)
		}
		for i, s := range raw {
			r, err := fhir.DecodeResource([]byte(s))
			if err != nil {
				return paging.Page{}, fmt.Errorf("decode entry %d: %w", lo+i, err)
			}
			entries = append(entries, r)
		}
	}
	return paging.WindowPage(c.limits, tok, meta["bundleType"], meta["self"], total, start, count, entries), nil
}

func (c *Controller) Limits() paging.Limits { return c.limits }

// Close closes the Redis client if the Controller dialed it.
func (c *Controller) Close() error {
	if c.ownClient {
		return c.client.Close()
	}
	return nil
}
