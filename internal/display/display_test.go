package display

import (
	"testing"

	"github.com/rcourtman/crauti-dashboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const second = models.Duration(1_000_000)

func sampleConfig() models.GlobalConfig {
	cfg := models.EmptyConfig()
	cfg.Gateway = models.GatewaySettings{ReadTimeout: 30 * second, IdleTimeout: 2 * 60 * second}
	cfg.Middlewares = models.MiddlewareSet{
		"cache":   map[string]any{"enabled": true, "ttl": 90 * second},
		"timeout": 5 * second,
	}
	cfg.MountPoints = []models.MountPoint{
		{
			Path:     "/api",
			Upstream: "http://up1",
			Middlewares: models.MiddlewareSet{
				"cache":   map[string]any{"ttl": 3600 * second},
				"timeout": 0,
			},
		},
		{Path: "/web", MatchHost: "a.com", Upstream: "http://up2"},
	}
	cfg.Extra = map[string]any{
		"gatewayListenAddress": ":8080",
		"gateway":              map[string]any{"compression": true},
	}
	return cfg
}

func decodeYAML(t *testing.T, text string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(text), &out))
	return out
}

func TestGlobalYAML(t *testing.T) {
	cfg := sampleConfig()

	text, err := GlobalYAML(cfg)
	require.NoError(t, err)

	got := decodeYAML(t, text)
	assert.NotContains(t, got, "mountPoints")
	assert.Equal(t, ":8080", got["gatewayListenAddress"])
	assert.Equal(t, map[string]any{
		"compression": true,
		"readTimeout": "30s",
		"idleTimeout": "2m",
	}, got["gateway"])
	assert.Equal(t, map[string]any{
		"cache":   map[string]any{"enabled": true, "ttl": "1m30s"},
		"timeout": "5s",
	}, got["middlewares"])
}

func TestGlobalYAMLLeavesSnapshotIntact(t *testing.T) {
	cfg := sampleConfig()
	want := sampleConfig()

	_, err := GlobalYAML(cfg)
	require.NoError(t, err)

	assert.Equal(t, want, cfg)
	assert.Len(t, cfg.MountPoints, 2)
	ttl, ok := cfg.Middlewares.Duration("cache", "ttl")
	require.True(t, ok)
	assert.Equal(t, 90*second, ttl)
}

func TestGlobalYAMLEmpty(t *testing.T) {
	text, err := GlobalYAML(models.EmptyConfig())
	require.NoError(t, err)
	assert.Equal(t, "{}\n", text)
}

func TestNewMountPointView(t *testing.T) {
	cfg := sampleConfig()

	view, err := NewMountPointView(cfg.MountPoints[0])
	require.NoError(t, err)
	assert.Equal(t, "/api", view.Path)
	assert.Equal(t, anyHost, view.MatchHost)
	assert.Equal(t, "http://up1", view.Upstream)
	assert.Equal(t, "1h", view.CacheTTL)
	assert.Empty(t, view.Timeout, "a non-duration timeout leaf is not rendered")

	mw := decodeYAML(t, view.Middlewares)
	assert.Equal(t, map[string]any{"ttl": "1h"}, mw["cache"])

	view, err = NewMountPointView(cfg.MountPoints[1])
	require.NoError(t, err)
	assert.Equal(t, "a.com", view.MatchHost)
	assert.Empty(t, view.CacheTTL)
	assert.Empty(t, view.Middlewares)
}

func TestMountPointViewRendersZeroDuration(t *testing.T) {
	mp := models.MountPoint{
		Path:        "/fast",
		Middlewares: models.MiddlewareSet{"timeout": models.Duration(0)},
	}
	view, err := NewMountPointView(mp)
	require.NoError(t, err)
	assert.Equal(t, "0s", view.Timeout)
}

func TestMountPointViewsKeepsOrder(t *testing.T) {
	views, err := MountPointViews(sampleConfig().MountPoints)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "/api", views[0].Path)
	assert.Equal(t, "/web", views[1].Path)

	views, err = MountPointViews(nil)
	require.NoError(t, err)
	assert.Empty(t, views)
}
