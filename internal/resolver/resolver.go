// Package resolver finds mount points by their (path, host) key.
package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rcourtman/crauti-dashboard/internal/gatewayclient"
	"github.com/rcourtman/crauti-dashboard/internal/models"
	"github.com/rcourtman/crauti-dashboard/internal/normalize"
)

// Query identifies a mount point. An empty Host means the caller did not
// supply one; RequireHost then limits matches to host-agnostic entries.
type Query struct {
	Path        string
	Host        string
	RequireHost bool
}

// Resolver looks up a single mount point. A miss is the zero MountPoint and
// a nil error.
type Resolver interface {
	Resolve(ctx context.Context, q Query) (models.MountPoint, error)
}

// Resolve scans cfg.MountPoints in order and returns the last entry whose
// path equals q.Path and whose host condition holds. Entries without a
// MatchHost match every host, so an entry placed after them for a specific
// host takes precedence for that host only.
func Resolve(cfg models.GlobalConfig, q Query) models.MountPoint {
	host := normalizeHost(q.Host)

	var found models.MountPoint
	for _, candidate := range cfg.MountPoints {
		if candidate.Path != q.Path {
			continue
		}
		if hostMatches(candidate, host, q.RequireHost) {
			found = candidate
		}
	}
	return found
}

func hostMatches(candidate models.MountPoint, host string, requireHost bool) bool {
	if !candidate.HasMatchHost() {
		return true
	}
	if host == "" {
		return !requireHost
	}
	return normalizeHost(candidate.MatchHost) == host
}

// normalizeHost lowercases a host and drops any port and IPv6 brackets.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return strings.ToLower(host)
}

// Filter returns the mount points whose path and host match the given
// wildcard patterns. An empty pattern matches everything.
func Filter(cfg models.GlobalConfig, pathPattern, hostPattern string) []models.MountPoint {
	out := make([]models.MountPoint, 0, len(cfg.MountPoints))
	for _, mp := range cfg.MountPoints {
		if pathPattern != "" && !wildcard.Match(pathPattern, mp.Path) {
			continue
		}
		if hostPattern != "" && !wildcard.Match(strings.ToLower(hostPattern), strings.ToLower(mp.MatchHost)) {
			continue
		}
		out = append(out, mp)
	}
	return out
}

// ConfigSource exposes the current canonical config.
type ConfigSource interface {
	Config() models.GlobalConfig
}

// Local resolves against the polling store's current snapshot.
type Local struct {
	source ConfigSource
}

// NewLocal returns a resolver backed by source.
func NewLocal(source ConfigSource) *Local {
	return &Local{source: source}
}

// Resolve implements Resolver.
func (l *Local) Resolve(_ context.Context, q Query) (models.MountPoint, error) {
	return Resolve(l.source.Config(), q).Clone(), nil
}

// MountPointFetcher is the part of the gateway client Remote needs.
type MountPointFetcher interface {
	FetchMountPoints(ctx context.Context, path, host string) (gatewayclient.Payload, error)
}

// Remote resolves through the gateway's /mount-point query and keeps the
// first acceptable record it returns.
type Remote struct {
	fetcher    MountPointFetcher
	normalizer *normalize.Normalizer
}

// NewRemote returns a resolver that asks the gateway directly.
func NewRemote(fetcher MountPointFetcher, normalizer *normalize.Normalizer) *Remote {
	if normalizer == nil {
		normalizer = normalize.New()
	}
	return &Remote{fetcher: fetcher, normalizer: normalizer}
}

// Resolve implements Resolver.
func (r *Remote) Resolve(ctx context.Context, q Query) (models.MountPoint, error) {
	payload, err := r.fetcher.FetchMountPoints(ctx, q.Path, q.Host)
	if err != nil {
		return models.MountPoint{}, err
	}
	mps, err := r.normalizer.MountPoints(payload.Body)
	if err != nil {
		return models.MountPoint{}, fmt.Errorf("resolve %s: %w", q.Path, err)
	}
	for _, mp := range mps {
		if q.RequireHost && q.Host == "" && mp.HasMatchHost() {
			continue
		}
		return mp, nil
	}
	return models.MountPoint{}, nil
}
