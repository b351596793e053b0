// Package cachetest provides an in-memory cache.Client for tests
package cachetest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// FakeClient backs the cache manager with in-memory maps so cache
// semantics can be tested without a running Redis.
type FakeClient struct {
	Store   map[string]string
	Hashes  map[string]map[string]string
	ExecErr error
	PingErr error
}

// NewFakeClient creates an empty fake client
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Store:  make(map[string]string),
		Hashes: make(map[string]map[string]string),
	}
}

func (c *FakeClient) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.Store[key] = asString(value)
	return redis.NewStatusResult("OK", nil)
}

func (c *FakeClient) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := c.Store[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (c *FakeClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	fields := make(map[string]string, len(c.Hashes[key]))
	for k, v := range c.Hashes[key] {
		fields[k] = v
	}
	return redis.NewMapStringStringResult(fields, nil)
}

func (c *FakeClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var deleted int64
	for _, key := range keys {
		if _, ok := c.Store[key]; ok {
			delete(c.Store, key)
			deleted++
		}
		if _, ok := c.Hashes[key]; ok {
			delete(c.Hashes, key)
			deleted++
		}
	}
	return redis.NewIntResult(deleted, nil)
}

func (c *FakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", c.PingErr)
}

func (c *FakeClient) TxPipeline() redis.Pipeliner {
	return &fakePipe{client: c}
}

func asString(value interface{}) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return ""
	}
}

// fakePipe buffers writes and applies them all at once on Exec, or
// not at all when ExecErr is set, mirroring transactional pipeline
// behavior.
type fakePipe struct {
	redis.Pipeliner

	client *FakeClient
	sets   map[string]string
	hsets  map[string]map[string]string
}

func (p *fakePipe) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if p.sets == nil {
		p.sets = make(map[string]string)
	}
	p.sets[key] = asString(value)
	return redis.NewStatusResult("OK", nil)
}

func (p *fakePipe) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if p.hsets == nil {
		p.hsets = make(map[string]map[string]string)
	}
	if p.hsets[key] == nil {
		p.hsets[key] = make(map[string]string)
	}
	for i := 0; i+1 < len(values); i += 2 {
		p.hsets[key][asString(values[i])] = asString(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (p *fakePipe) Expire(ctx context.Context, key string, _ time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (p *fakePipe) Exec(ctx context.Context) ([]redis.Cmder, error) {
	if p.client.ExecErr != nil {
		return nil, p.client.ExecErr
	}
	for k, v := range p.sets {
		p.client.Store[k] = v
	}
	for k, fields := range p.hsets {
		if p.client.Hashes[k] == nil {
			p.client.Hashes[k] = make(map[string]string)
		}
		for f, v := range fields {
			p.client.Hashes[k][f] = v
		}
	}
	return nil, nil
}
