package sink

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"arbscan/internal/metrics"
)

// RedisSink publishes records to a Redis Stream and mirrors them on Pub/Sub
// so both replay consumers and live dashboards see them.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink connects and verifies the server is reachable.
func NewRedisSink(addr, channel string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisSink{client: client, channel: channel}, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) publish(ctx context.Context, channel string, record map[string]interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	streamKey := s.channel + ":" + channel
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err(); err != nil {
		metrics.SinkPublishErrors.WithLabelValues("redis").Inc()
		return err
	}
	if err := s.client.Publish(ctx, streamKey, string(data)).Err(); err != nil {
		metrics.SinkPublishErrors.WithLabelValues("redis").Inc()
		return err
	}
	return nil
}

func (s *RedisSink) EmitMessage(ctx context.Context, channel, text string) error {
	return s.publish(ctx, channel, map[string]interface{}{
		"type": "message",
		"text": text,
		"ts":   time.Now().UnixMilli(),
	})
}

func (s *RedisSink) EmitImage(ctx context.Context, channel string, image []byte, caption string) error {
	return s.publish(ctx, channel, map[string]interface{}{
		"type":    "image",
		"caption": caption,
		"image":   base64.StdEncoding.EncodeToString(image),
		"ts":      time.Now().UnixMilli(),
	})
}

var _ Sink = (*RedisSink)(nil)
var _ Sink = (*LogSink)(nil)
var _ Sink = (*Multi)(nil)
