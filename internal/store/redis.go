package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"unitattendance/internal/attendance"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// RedisLedger stores the whole ledger as one JSON value under a key.
type RedisLedger struct {
	client *redis.Client
	key    string
}

// NewRedisLedger builds a ledger gateway on an existing client.
func NewRedisLedger(client *redis.Client, key string) *RedisLedger {
	if key == "" {
		key = "attendance:records"
	}
	return &RedisLedger{client: client, key: key}
}

// LoadAttendanceRecords reads the snapshot; a missing key is an empty ledger.
func (l *RedisLedger) LoadAttendanceRecords(ctx context.Context) ([]attendance.Record, error) {
	raw, err := l.client.Get(ctx, l.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", l.key, err)
	}
	var recs []attendance.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.key, err)
	}
	return recs, nil
}

// SaveAttendanceRecords overwrites the snapshot.
func (l *RedisLedger) SaveAttendanceRecords(ctx context.Context, records []attendance.Record) error {
	if records == nil {
		records = []attendance.Record{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode attendance records: %w", err)
	}
	return l.client.Set(ctx, l.key, raw, 0).Err()
}
