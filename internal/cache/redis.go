// Package cache provides the Redis client used for short-lived OTP codes and
// rate-limit counters.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open connects to Redis at addr and verifies the connection with a ping.
// Caller must call Close on the returned client when done.
func Open(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
