// Package notify broadcasts guideline catalog reloads between server
// instances over Redis pub/sub, so that every instance swaps in the new
// catalog when one of them is asked to reload.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
)

// DefaultChannel is used when the configuration names none.
const DefaultChannel = "svd-classify:guidelines:reload"

// Reloader rebuilds the guideline catalog.
type Reloader interface {
	Reload() (*catalog.Catalog, error)
}

// reloadMessage is the payload published on the channel.
type reloadMessage struct {
	Instance string    `json:"instance"`
	SentAt   time.Time `json:"sent_at"`
}

// ReloadNotifier publishes and receives reload requests.
type ReloadNotifier struct {
	client   *redis.Client
	channel  string
	instance string
	breaker  *gobreaker.CircuitBreaker
	reloader Reloader
	logger   *logrus.Logger
}

// NewReloadNotifier connects to the Redis server named in cfg.RedisURL.
// The connection is not verified here; Run reports a dead server.
func NewReloadNotifier(cfg domain.CacheConfig, reloader Reloader, logger *logrus.Logger) (*ReloadNotifier, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return newReloadNotifier(redis.NewClient(opts), cfg.ReloadChannel, reloader, logger), nil
}

func newReloadNotifier(client *redis.Client, channel string, reloader Reloader, logger *logrus.Logger) *ReloadNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	n := &ReloadNotifier{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		reloader: reloader,
		logger:   logger,
	}
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-reload",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return n
}

// Instance identifies this process on the channel.
func (n *ReloadNotifier) Instance() string {
	return n.instance
}

// Publish tells the other instances to reload. The local reload is the
// caller's job.
func (n *ReloadNotifier) Publish(ctx context.Context) error {
	payload, err := json.Marshal(reloadMessage{Instance: n.instance, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding reload message: %w", err)
	}
	_, err = n.breaker.Execute(func() (interface{}, error) {
		return nil, n.client.Publish(ctx, n.channel, payload).Err()
	})
	if err != nil {
		n.logger.WithError(err).WithField("channel", n.channel).Warn("Failed to publish guideline reload")
		return fmt.Errorf("publishing reload: %w", err)
	}
	n.logger.WithField("channel", n.channel).Info("Guideline reload published")
	return nil
}

// Run receives reload requests until ctx is done.
func (n *ReloadNotifier) Run(ctx context.Context) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribing to %s: %w", n.channel, err)
	}
	n.logger.WithFields(logrus.Fields{
		"channel":  n.channel,
		"instance": n.instance,
	}).Info("Listening for guideline reloads")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			n.handle(msg.Payload)
		}
	}
}

// handle reloads the catalog for a message sent by another instance.
// It reports whether a reload happened.
func (n *ReloadNotifier) handle(payload string) bool {
	var msg reloadMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		n.logger.WithError(err).Warn("Ignoring malformed reload message")
		return false
	}
	if msg.Instance == n.instance {
		return false
	}
	if _, err := n.reloader.Reload(); err != nil {
		n.logger.WithError(err).WithField("from", msg.Instance).Error("Guideline reload requested by peer failed")
		return false
	}
	n.logger.WithField("from", msg.Instance).Info("Guideline catalog reloaded on peer request")
	return true
}

// Close releases the Redis connection.
func (n *ReloadNotifier) Close() error {
	return n.client.Close()
}
