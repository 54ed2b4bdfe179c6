package utils

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// RedisClient is an optional shared Redis client used for cross-instance
// coordination (redeem deduplication). It stays nil when REDIS_ADDR is not
// configured and callers fall back to process-local state.
var RedisClient *redis.Client

func init() {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return
	}
	addr = strings.ReplaceAll(addr, " ", "")
	opts := &redis.Options{Addr: addr}
	if p := os.Getenv("REDIS_PASS"); p != "" {
		opts.Password = p
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		var dbn int
		_, _ = fmt.Sscanf(dbStr, "%d", &dbn)
		opts.DB = dbn
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(context.Background()).Err(); err != nil {
		log.Printf("[redis] ping failed, falling back to in-memory state: %v", err)
		return
	}
	RedisClient = rc
}
