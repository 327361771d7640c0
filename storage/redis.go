package storage

import (
	"log"
	"os"

	"github.com/go-redis/redis/v8"
)

// Redis backs refresh tokens, typing indicators and the webhook replay
// ledger. Handlers tolerate a nil client, so tests can run without one.
var Redis *redis.Client

func InitializeRedis() {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
		log.Println("REDIS_URL not set, using localhost:6379 (development mode)")
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	log.Println("Redis initialized with address:", redisURL)
}
