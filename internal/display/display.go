// Package display derives read-only presentation values from the canonical
// config. Nothing here modifies its input; every projection works on a copy.
package display

import (
	"fmt"
	"strings"

	"github.com/rcourtman/crauti-dashboard/internal/format"
	"github.com/rcourtman/crauti-dashboard/internal/models"
	"gopkg.in/yaml.v3"
)

// anyHost is shown for mount points without a host restriction.
const anyHost = "*"

// MountPointView is one row of the mount point table.
type MountPointView struct {
	Path        string `json:"path" yaml:"path"`
	MatchHost   string `json:"matchHost" yaml:"matchHost"`
	Upstream    string `json:"upstream" yaml:"upstream"`
	CacheTTL    string `json:"cacheTTL,omitempty" yaml:"cacheTTL,omitempty"`
	Timeout     string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Middlewares string `json:"middlewares,omitempty" yaml:"middlewares,omitempty"`
}

// GlobalYAML renders everything except the mount point list, with durations
// shown as human strings.
func GlobalYAML(cfg models.GlobalConfig) (string, error) {
	global := cfg.WithoutMountPoints()

	doc := make(map[string]any, len(global.Extra)+2)
	for key, val := range global.Extra {
		doc[key] = renderValue(val)
	}

	gateway := map[string]any{}
	if rest, ok := doc["gateway"].(map[string]any); ok {
		gateway = rest
	}
	putDuration(gateway, "readTimeout", global.Gateway.ReadTimeout)
	putDuration(gateway, "writeTimeout", global.Gateway.WriteTimeout)
	putDuration(gateway, "idleTimeout", global.Gateway.IdleTimeout)
	if len(gateway) > 0 {
		doc["gateway"] = gateway
	}

	if len(global.Middlewares) > 0 {
		doc["middlewares"] = renderValue(map[string]any(global.Middlewares))
	}

	return marshal(doc)
}

// NewMountPointView builds the table row for mp.
func NewMountPointView(mp models.MountPoint) (MountPointView, error) {
	view := MountPointView{
		Path:      mp.Path,
		MatchHost: mp.MatchHost,
		Upstream:  mp.Upstream,
	}
	if view.MatchHost == "" {
		view.MatchHost = anyHost
	}
	if d, ok := mp.Middlewares.Duration("cache", "ttl"); ok {
		view.CacheTTL = format.DurationOrZero(int64(d))
	}
	if d, ok := mp.Middlewares.Duration("timeout"); ok {
		view.Timeout = format.DurationOrZero(int64(d))
	}

	text, err := MiddlewaresYAML(mp)
	if err != nil {
		return view, err
	}
	view.Middlewares = text
	return view, nil
}

// MountPointViews builds table rows in config order.
func MountPointViews(mps []models.MountPoint) ([]MountPointView, error) {
	views := make([]MountPointView, 0, len(mps))
	for _, mp := range mps {
		view, err := NewMountPointView(mp)
		if err != nil {
			return nil, fmt.Errorf("mount point %s: %w", mp.Path, err)
		}
		views = append(views, view)
	}
	return views, nil
}

// MiddlewaresYAML renders a mount point's middleware overrides. A mount point
// without overrides renders as the empty string.
func MiddlewaresYAML(mp models.MountPoint) (string, error) {
	if len(mp.Middlewares) == 0 {
		return "", nil
	}
	return marshal(renderValue(map[string]any(mp.Middlewares)))
}

// renderValue copies v with every Duration leaf replaced by its string form.
func renderValue(v any) any {
	switch t := v.(type) {
	case models.Duration:
		return format.DurationOrZero(int64(t))
	case models.MiddlewareSet:
		return renderValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = renderValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = renderValue(val)
		}
		return out
	default:
		return v
	}
}

func putDuration(m map[string]any, key string, d models.Duration) {
	if d == 0 {
		return
	}
	m[key] = format.DurationOrZero(int64(d))
}

func marshal(v any) (string, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	return b.String(), nil
}
