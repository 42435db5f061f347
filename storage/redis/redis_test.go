//go:build integration

package redis_test

import (
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/anchorwire/xmpp/storage"
	"github.com/anchorwire/xmpp/storage/redis"
	"github.com/anchorwire/xmpp/storage/storagetest"
)

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}

	storagetest.TestStorage(t, func() storage.Storage {
		return redis.New(&goredis.Options{
			Addr: addr,
		})
	})
}
