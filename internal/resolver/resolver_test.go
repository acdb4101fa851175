package resolver

import (
	"context"
	"errors"
	"testing"

	internalerrors "github.com/rcourtman/crauti-dashboard/internal/errors"
	"github.com/rcourtman/crauti-dashboard/internal/gatewayclient"
	"github.com/rcourtman/crauti-dashboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configWith(mps ...models.MountPoint) models.GlobalConfig {
	cfg := models.EmptyConfig()
	cfg.MountPoints = mps
	return cfg
}

func TestResolve(t *testing.T) {
	wildcard := models.MountPoint{Path: "/api", Upstream: "http://any"}
	aHost := models.MountPoint{Path: "/api", MatchHost: "a.com", Upstream: "http://a"}
	other := models.MountPoint{Path: "/other", Upstream: "http://other"}
	v6Host := models.MountPoint{Path: "/api", MatchHost: "[::1]", Upstream: "http://v6"}

	tests := []struct {
		name string
		cfg  models.GlobalConfig
		q    Query
		want models.MountPoint
	}{
		{
			name: "host specific entry after wildcard wins for its host",
			cfg:  configWith(wildcard, aHost),
			q:    Query{Path: "/api", Host: "a.com"},
			want: aHost,
		},
		{
			name: "other hosts fall back to wildcard",
			cfg:  configWith(wildcard, aHost),
			q:    Query{Path: "/api", Host: "b.com"},
			want: wildcard,
		},
		{
			name: "wildcard placed last overrides host specific entry",
			cfg:  configWith(aHost, wildcard),
			q:    Query{Path: "/api", Host: "a.com"},
			want: wildcard,
		},
		{
			name: "empty sequence",
			cfg:  configWith(),
			q:    Query{Path: "/api", Host: "a.com"},
		},
		{
			name: "wildcard only matches any host",
			cfg:  configWith(wildcard),
			q:    Query{Path: "/api", Host: "x.org"},
			want: wildcard,
		},
		{
			name: "no host given accepts host bound entries",
			cfg:  configWith(wildcard, aHost),
			q:    Query{Path: "/api"},
			want: aHost,
		},
		{
			name: "require host without host keeps host agnostic entries only",
			cfg:  configWith(wildcard, aHost),
			q:    Query{Path: "/api", RequireHost: true},
			want: wildcard,
		},
		{
			name: "require host without host and no wildcard misses",
			cfg:  configWith(aHost),
			q:    Query{Path: "/api", RequireHost: true},
		},
		{
			name: "host compare ignores case and port",
			cfg:  configWith(wildcard, aHost),
			q:    Query{Path: "/api", Host: "A.COM:8080"},
			want: aHost,
		},
		{
			name: "bracketed ipv6 host matches with or without port",
			cfg:  configWith(wildcard, v6Host),
			q:    Query{Path: "/api", Host: "[::1]:8080"},
			want: v6Host,
		},
		{
			name: "bare ipv6 query matches bracketed entry",
			cfg:  configWith(wildcard, v6Host),
			q:    Query{Path: "/api", Host: "::1"},
			want: v6Host,
		},
		{
			name: "path must match exactly",
			cfg:  configWith(wildcard, other),
			q:    Query{Path: "/api/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.cfg, tt.q)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Found(), got.Found())
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := map[string]string{
		"":              "",
		" A.com ":       "a.com",
		"a.com:443":     "a.com",
		"[::1]":         "::1",
		"[::1]:8080":    "::1",
		"::1":           "::1",
		"[FE80::1]:443": "fe80::1",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeHost(in), "normalizeHost(%q)", in)
	}
}

func TestFilter(t *testing.T) {
	cfg := configWith(
		models.MountPoint{Path: "/api/v1", MatchHost: "a.example.com"},
		models.MountPoint{Path: "/api/v2", MatchHost: "B.example.com"},
		models.MountPoint{Path: "/static"},
	)

	assert.Len(t, Filter(cfg, "", ""), 3)

	got := Filter(cfg, "/api/*", "")
	require.Len(t, got, 2)
	assert.Equal(t, "/api/v1", got[0].Path)

	got = Filter(cfg, "", "b.*")
	require.Len(t, got, 1)
	assert.Equal(t, "/api/v2", got[0].Path)

	assert.Empty(t, Filter(cfg, "/nope*", ""))
}

type staticSource struct {
	cfg models.GlobalConfig
}

func (s staticSource) Config() models.GlobalConfig { return s.cfg }

func TestLocalReturnsCopy(t *testing.T) {
	source := staticSource{cfg: configWith(models.MountPoint{
		Path:        "/api",
		Middlewares: models.MiddlewareSet{"cors": map[string]any{"enabled": true}},
	})}
	local := NewLocal(source)

	got, err := local.Resolve(context.Background(), Query{Path: "/api"})
	require.NoError(t, err)
	require.True(t, got.Found())

	got.Middlewares["cors"].(map[string]any)["enabled"] = false
	enabled, _ := source.cfg.MountPoints[0].Middlewares.Lookup("cors", "enabled")
	assert.Equal(t, true, enabled)
}

type fakeFetcher struct {
	body []byte
	err  error
	path string
	host string
}

func (f *fakeFetcher) FetchMountPoints(_ context.Context, path, host string) (gatewayclient.Payload, error) {
	f.path, f.host = path, host
	if f.err != nil {
		return gatewayclient.Payload{}, f.err
	}
	return gatewayclient.Payload{Body: f.body}, nil
}

func TestRemoteResolve(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(`[{"Path":"/api","MatchHost":"a.com","Upstream":"http://a"},{"Path":"/api"}]`)}
	remote := NewRemote(fetcher, nil)

	got, err := remote.Resolve(context.Background(), Query{Path: "/api", Host: "a.com"})
	require.NoError(t, err)
	assert.Equal(t, "/api", fetcher.path)
	assert.Equal(t, "a.com", fetcher.host)
	assert.Equal(t, "http://a", got.Upstream)

	got, err = remote.Resolve(context.Background(), Query{Path: "/api", RequireHost: true})
	require.NoError(t, err)
	assert.Equal(t, "/api", got.Path)
	assert.Empty(t, got.MatchHost)
}

func TestRemoteResolveEmptyAndErrors(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(`[]`)}
	remote := NewRemote(fetcher, nil)

	got, err := remote.Resolve(context.Background(), Query{Path: "/missing"})
	require.NoError(t, err)
	assert.False(t, got.Found())

	fetcher.err = internalerrors.WrapUnreachable("fetch_mount_points", "http://gw", errors.New("refused"))
	_, err = remote.Resolve(context.Background(), Query{Path: "/api"})
	assert.True(t, internalerrors.IsUnreachable(err))

	fetcher.err = nil
	fetcher.body = []byte(`[42]`)
	_, err = remote.Resolve(context.Background(), Query{Path: "/api"})
	assert.True(t, internalerrors.IsMalformed(err))
}
