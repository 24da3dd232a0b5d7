package observer

import (
	"context"
	"encoding/json"
	"fmt"

	"go-drawing-inspector/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisProgressObserver publishes run events on a per-run pub/sub channel
// for the websocket layer to relay
type RedisProgressObserver struct {
	client *redis.Client
	prefix string
}

// NewRedisProgressObserver connects to the broker at host:port
func NewRedisProgressObserver(host, port, prefix string) *RedisProgressObserver {
	rdb := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port),
	})
	return &RedisProgressObserver{client: rdb, prefix: prefix}
}

// Channel returns the pub/sub channel of a run
func (o *RedisProgressObserver) Channel(runID string) string {
	return o.prefix + runID
}

// OnEvent publishes the event. Fetch events carry no run progress and are
// not forwarded.
func (o *RedisProgressObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	if event.RunID == "" || event.EventType == DrawingFetched {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("Failed to encode progress event")
		return
	}
	if err := o.client.Publish(ctx, o.Channel(event.RunID), string(payload)).Err(); err != nil {
		logger.WithFields(logrus.Fields{
			"run_id":     event.RunID,
			"event_type": event.EventType,
			"error":      err.Error(),
		}).Warn("Failed to publish progress event")
	}
}

// GetObserverName returns the observer name
func (o *RedisProgressObserver) GetObserverName() string {
	return "redis_progress_observer"
}

// Close releases the broker connection
func (o *RedisProgressObserver) Close() error {
	return o.client.Close()
}
