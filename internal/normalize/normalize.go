// Package normalize converts the gateway admin API payloads, in whatever
// shape a given gateway version produces, into models.GlobalConfig.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	internalerrors "github.com/rcourtman/crauti-dashboard/internal/errors"
	"github.com/rcourtman/crauti-dashboard/internal/models"
	"gopkg.in/yaml.v3"
)

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithWireUnit sets the unit of integer duration values on the wire.
// The gateway marshals Go time.Duration, so the default is nanoseconds.
func WithWireUnit(unit time.Duration) Option {
	return func(n *Normalizer) {
		if unit > 0 {
			n.wireUnit = unit
		}
	}
}

// Normalizer reconciles admin API payloads into the canonical model.
// The zero value is not usable; call New.
type Normalizer struct {
	wireUnit time.Duration
	adapters []shapeAdapter
}

// New returns a Normalizer with the default adapter chain.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		wireUnit: time.Nanosecond,
		adapters: defaultAdapters(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = New()

// Config normalizes a /config or /config/yaml response body.
func Config(body []byte) (models.GlobalConfig, error) {
	return defaultNormalizer.Config(body)
}

// ConfigValue normalizes an already decoded payload.
func ConfigValue(v any) (models.GlobalConfig, error) {
	return defaultNormalizer.ConfigValue(v)
}

// MountPoints normalizes a /mount-point response body.
func MountPoints(body []byte) ([]models.MountPoint, error) {
	return defaultNormalizer.MountPoints(body)
}

// Config decodes body and normalizes it. Empty, whitespace-only and null
// bodies yield models.EmptyConfig without error.
func (n *Normalizer) Config(body []byte) (models.GlobalConfig, error) {
	v, err := decode(body, 0)
	if err != nil {
		return models.EmptyConfig(), internalerrors.WrapMalformed("decode_config", "", err)
	}
	return n.ConfigValue(v)
}

// ConfigValue normalizes decoded data. A string value is treated as an
// encoded document and decoded first.
func (n *Normalizer) ConfigValue(v any) (models.GlobalConfig, error) {
	if s, ok := v.(string); ok {
		decoded, err := decode([]byte(s), 1)
		if err != nil {
			return models.EmptyConfig(), internalerrors.WrapMalformed("decode_config", "", err)
		}
		v = decoded
	}
	if v == nil {
		return models.EmptyConfig(), nil
	}

	root, ok := canonicalizeValue(v).(map[string]any)
	if !ok {
		return models.EmptyConfig(), internalerrors.WrapMalformed("normalize_config", "",
			fmt.Errorf("expected a mapping at top level, got %T", v))
	}

	for _, adapter := range n.adapters {
		root = adapter.apply(root)
	}

	cfg, err := n.build(root)
	if err != nil {
		return models.EmptyConfig(), internalerrors.WrapMalformed("normalize_config", "", err)
	}
	return cfg, nil
}

// MountPoints normalizes the server-side mount point query result. It
// accepts a bare list, a single mount point object or a full config.
func (n *Normalizer) MountPoints(body []byte) ([]models.MountPoint, error) {
	v, err := decode(body, 0)
	if err != nil {
		return []models.MountPoint{}, internalerrors.WrapMalformed("decode_mount_points", "", err)
	}

	switch t := canonicalizeValue(v).(type) {
	case nil:
		return []models.MountPoint{}, nil
	case []any:
		return n.mountPointList(t)
	case map[string]any:
		if _, ok := t["path"]; ok {
			return n.mountPointList([]any{t})
		}
		cfg, err := n.ConfigValue(t)
		if err != nil {
			return []models.MountPoint{}, err
		}
		return cfg.MountPoints, nil
	default:
		return []models.MountPoint{}, internalerrors.WrapMalformed("normalize_mount_points", "",
			fmt.Errorf("unexpected mount point payload %T", v))
	}
}

func (n *Normalizer) mountPointList(list []any) ([]models.MountPoint, error) {
	root := map[string]any{"mountPoints": list}
	for _, adapter := range n.adapters {
		root = adapter.apply(root)
	}
	mps, err := n.mountPoints(root["mountPoints"])
	if err != nil {
		return []models.MountPoint{}, internalerrors.WrapMalformed("normalize_mount_points", "", err)
	}
	return mps, nil
}

func (n *Normalizer) build(root map[string]any) (models.GlobalConfig, error) {
	cfg := models.EmptyConfig()

	for key, val := range root {
		switch key {
		case "gateway":
			gw, rest, err := n.gateway(val)
			if err != nil {
				return cfg, err
			}
			cfg.Gateway = gw
			if len(rest) > 0 {
				cfg.Extra["gateway"] = rest
			}
		case "middlewares":
			set, err := n.middlewares(val)
			if err != nil {
				return cfg, fmt.Errorf("middlewares: %w", err)
			}
			cfg.Middlewares = set
		case "mountPoints":
			mps, err := n.mountPoints(val)
			if err != nil {
				return cfg, err
			}
			cfg.MountPoints = mps
		default:
			cfg.Extra[key] = val
		}
	}
	return cfg, nil
}

func (n *Normalizer) gateway(v any) (models.GatewaySettings, map[string]any, error) {
	var gw models.GatewaySettings
	if v == nil {
		return gw, nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return gw, nil, fmt.Errorf("gateway: expected a mapping, got %T", v)
	}

	rest := make(map[string]any, len(m))
	for key, val := range m {
		var target *models.Duration
		switch key {
		case "readTimeout":
			target = &gw.ReadTimeout
		case "writeTimeout":
			target = &gw.WriteTimeout
		case "idleTimeout":
			target = &gw.IdleTimeout
		}
		if target == nil {
			rest[key] = val
			continue
		}
		if val == nil {
			continue
		}
		d, ok := toDuration(val, n.wireUnit)
		if !ok {
			return gw, nil, fmt.Errorf("gateway.%s: invalid duration %v", key, val)
		}
		*target = d
	}
	return gw, rest, nil
}

func (n *Normalizer) middlewares(v any) (models.MiddlewareSet, error) {
	if v == nil {
		return models.MiddlewareSet{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
	convertDurations(m, n.wireUnit)
	return models.MiddlewareSet(m), nil
}

func (n *Normalizer) mountPoints(v any) ([]models.MountPoint, error) {
	out := []models.MountPoint{}
	if v == nil {
		return out, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("mountPoints: expected a list, got %T", v)
	}

	for i, item := range list {
		if item == nil {
			continue
		}
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mountPoints[%d]: expected a mapping, got %T", i, item)
		}
		set, err := n.middlewares(m["middlewares"])
		if err != nil {
			return nil, fmt.Errorf("mountPoints[%d].middlewares: %w", i, err)
		}
		out = append(out, models.MountPoint{
			Path:        scalarString(m["path"]),
			MatchHost:   scalarString(m["matchHost"]),
			Upstream:    scalarString(m["upstream"]),
			Middlewares: set,
		})
	}
	return out, nil
}

// decode parses a response body. JSON is tried first so numbers keep full
// precision; anything else goes through the YAML parser.
func decode(body []byte, depth int) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var v any
	if json.Valid(trimmed) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	// A string is an encoded document carried inside another payload. Only
	// one level of wrapping is unpacked.
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	if depth > 0 {
		return nil, fmt.Errorf("payload is a bare string: %q", truncate(s, 64))
	}
	return decode([]byte(s), depth+1)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
