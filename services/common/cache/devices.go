// services/common/cache/devices.go

// Package cache keeps the set of known device ids in Redis.
package cache

import (
	"context"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the class of device cache errors.
var Error = errs.Class("device cache")

const (
	// DevicesKey is the Redis set holding every device id seen by an upload.
	DevicesKey = "vault:devices"
	// WarmKey marks DevicesKey as complete. It is only set by Fill, so a set
	// rebuilt by uploads alone after a flush is never served as the full list.
	WarmKey = "vault:devices:warm"
)

// Devices is a Redis-backed set of device ids.
type Devices struct {
	log    *zap.Logger
	client *redis.Client
}

// OpenDevices connects to Redis and verifies the connection.
func OpenDevices(ctx context.Context, log *zap.Logger, addr, password string, db int) (*Devices, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, Error.New("ping failed: %v", err)
	}
	log.Info("✅ Redis connected", zap.String("addr", addr))
	return &Devices{log: log, client: client}, nil
}

// Add records device ids.
func (d *Devices) Add(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return Error.Wrap(d.client.SAdd(ctx, DevicesKey, members...).Err())
}

// Fill records the complete device list and marks the set warm.
func (d *Devices) Fill(ctx context.Context, ids ...string) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(ids) > 0 {
			members := make([]interface{}, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, DevicesKey, members...)
		}
		pipe.Set(ctx, WarmKey, "1", 0)
		return nil
	})
	return Error.Wrap(err)
}

// Warm reports whether the set was filled from the full device list.
func (d *Devices) Warm(ctx context.Context) (bool, error) {
	n, err := d.client.Exists(ctx, WarmKey).Result()
	if err != nil {
		return false, Error.Wrap(err)
	}
	return n > 0, nil
}

// Members returns the cached device ids, sorted. Only a warm set is complete.
func (d *Devices) Members(ctx context.Context) ([]string, error) {
	ids, err := d.client.SMembers(ctx, DevicesKey).Result()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping verifies Redis is reachable.
func (d *Devices) Ping(ctx context.Context) error {
	return Error.Wrap(d.client.Ping(ctx).Err())
}

// Close closes the client.
func (d *Devices) Close() error {
	return Error.Wrap(d.client.Close())
}
