package distributor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink mirrors published frames out of process. Implementations must not
// block the publish path for long; the distributor logs and counts failures
// but never retries.
type Sink interface {
	Publish(topic string, frame Frame) error
	Close() error
}

// NopSink discards everything. Useful when egress is disabled.
type NopSink struct{}

func (NopSink) Publish(string, Frame) error { return nil }
func (NopSink) Close() error                { return nil }

// ChannelPrefix namespaces redis pub/sub channels.
const ChannelPrefix = "synopticon."

// RedisSink publishes frames as JSON to redis pub/sub channels, one channel
// per topic under the synopticon. prefix.
type RedisSink struct {
	client  *redis.Client
	timeout time.Duration
}

// RedisConfig tunes the redis egress connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds each publish. Default 2s.
	Timeout time.Duration
}

func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis sink: %w", err)
	}
	return &RedisSink{client: client, timeout: cfg.Timeout}, nil
}

func (s *RedisSink) Publish(topic string, frame Frame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("redis sink marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Publish(ctx, ChannelPrefix+topic, b).Err(); err != nil {
		return fmt.Errorf("redis sink publish: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error { return s.client.Close() }
