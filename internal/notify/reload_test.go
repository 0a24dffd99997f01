package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
)

type countingReloader struct {
	calls int
	err   error
}

func (r *countingReloader) Reload() (*catalog.Catalog, error) {
	r.calls++
	return nil, r.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// deadClient points at a port nothing listens on.
func deadClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func payloadFrom(t *testing.T, instance string) string {
	t.Helper()
	b, err := json.Marshal(reloadMessage{Instance: instance, SentAt: time.Now()})
	require.NoError(t, err)
	return string(b)
}

func TestNewReloadNotifier_InvalidURL(t *testing.T) {
	_, err := NewReloadNotifier(domain.CacheConfig{RedisURL: "not a url"}, &countingReloader{}, testLogger())
	assert.Error(t, err)
}

func TestNewReloadNotifier_DefaultChannel(t *testing.T) {
	n, err := NewReloadNotifier(domain.CacheConfig{RedisURL: "redis://localhost:6379/0"}, &countingReloader{}, testLogger())
	require.NoError(t, err)
	defer n.Close()
	assert.Equal(t, DefaultChannel, n.channel)
	assert.NotEmpty(t, n.Instance())
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name       string
		payload    func(n *ReloadNotifier) string
		reloadErr  error
		wantReload bool
		wantCalls  int
	}{
		{
			name:       "peer message reloads",
			payload:    func(n *ReloadNotifier) string { return payloadFrom(t, "peer") },
			wantReload: true,
			wantCalls:  1,
		},
		{
			name:      "own message is ignored",
			payload:   func(n *ReloadNotifier) string { return payloadFrom(t, n.Instance()) },
			wantCalls: 0,
		},
		{
			name:      "malformed message is ignored",
			payload:   func(n *ReloadNotifier) string { return "{" },
			wantCalls: 0,
		},
		{
			name:      "failed reload is reported",
			payload:   func(n *ReloadNotifier) string { return payloadFrom(t, "peer") },
			reloadErr: errors.New("bad yaml"),
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reloader := &countingReloader{err: tt.reloadErr}
			n := newReloadNotifier(deadClient(), "", reloader, testLogger())
			defer n.Close()

			assert.Equal(t, tt.wantReload, n.handle(tt.payload(n)))
			assert.Equal(t, tt.wantCalls, reloader.calls)
		})
	}
}

func TestPublish_BreakerOpensAfterFailures(t *testing.T) {
	n := newReloadNotifier(deadClient(), "test", &countingReloader{}, testLogger())
	defer n.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, n.Publish(ctx))
	}
	err := n.Publish(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
