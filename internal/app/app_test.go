package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tripmatch/internal/config"
	"github.com/example/tripmatch/internal/dispatch"
	"github.com/example/tripmatch/internal/geo"
	"github.com/example/tripmatch/internal/logging"
	"github.com/example/tripmatch/internal/storage"
)

func TestBuildInMemory(t *testing.T) {
	cfg, err := config.LoadServerConfig()
	require.NoError(t, err)

	a, err := Build(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &storage.MemoryStore{}, a.Matcher.Store)
	assert.IsType(t, &geo.MemoryIndex{}, a.Matcher.Index)
	require.IsType(t, &dispatch.WebhookDispatcher{}, a.Matcher.Notifier)
	assert.Empty(t, a.Matcher.Notifier.(*dispatch.WebhookDispatcher).Endpoint)
	assert.Nil(t, a.Matcher.Directions)
	assert.InDelta(t, cfg.SpeedMps, a.Matcher.Fallback.SpeedMps, 1e-9)
	assert.Nil(t, a.Matcher.Publisher)
	assert.True(t, a.Matcher.InlineMatching)
	assert.NoError(t, a.Ready(context.Background()))
}

func TestBuildWithWebhookAndOSRM(t *testing.T) {
	cfg, err := config.LoadServerConfig()
	require.NoError(t, err)
	cfg.WebhookEndpoint = "http://127.0.0.1:1/notify"
	cfg.OSRMEndpoint = "http://127.0.0.1:1"

	a, err := Build(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, &dispatch.WebhookDispatcher{}, a.Matcher.Notifier)
	assert.Equal(t, cfg.WebhookEndpoint, a.Matcher.Notifier.(*dispatch.WebhookDispatcher).Endpoint)
	assert.NotNil(t, a.Matcher.Directions)
}
