package models

// Duration is a signed count of microseconds as reported by the gateway.
type Duration int64

// GlobalConfig is the canonical gateway configuration snapshot.
type GlobalConfig struct {
	Gateway     GatewaySettings `json:"gateway" yaml:"gateway"`
	Middlewares MiddlewareSet   `json:"middlewares" yaml:"middlewares"`
	MountPoints []MountPoint    `json:"mountPoints" yaml:"mountPoints"`
	// Extra holds the remaining top-level fields (listen addresses,
	// kubernetes settings, ...) keyed in canonical casing.
	Extra map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// GatewaySettings holds the gateway's server timeouts.
type GatewaySettings struct {
	ReadTimeout  Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout Duration `json:"writeTimeout" yaml:"writeTimeout"`
	IdleTimeout  Duration `json:"idleTimeout" yaml:"idleTimeout"`
}

// MountPoint binds a path, and optionally a host, to an upstream.
type MountPoint struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// MatchHost is empty when the mount point applies to any host.
	MatchHost   string        `json:"matchHost,omitempty" yaml:"matchHost,omitempty"`
	Upstream    string        `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Middlewares MiddlewareSet `json:"middlewares,omitempty" yaml:"middlewares,omitempty"`
}

// MiddlewareSet is the semi-structured middleware configuration bag keyed by
// middleware name. Nested maps are map[string]any; known duration leaves are
// Duration values.
type MiddlewareSet map[string]any

// EmptyConfig returns the canonical config used when the gateway reports
// nothing.
func EmptyConfig() GlobalConfig {
	return GlobalConfig{
		Middlewares: MiddlewareSet{},
		MountPoints: []MountPoint{},
		Extra:       map[string]any{},
	}
}

// IsEmpty reports whether c carries no information at all.
func (c GlobalConfig) IsEmpty() bool {
	return len(c.MountPoints) == 0 &&
		len(c.Middlewares) == 0 &&
		len(c.Extra) == 0 &&
		c.Gateway == GatewaySettings{}
}

// Clone returns a deep copy of c.
func (c GlobalConfig) Clone() GlobalConfig {
	out := GlobalConfig{
		Gateway:     c.Gateway,
		Middlewares: c.Middlewares.Clone(),
		MountPoints: make([]MountPoint, 0, len(c.MountPoints)),
		Extra:       cloneAnyMap(c.Extra),
	}
	for _, mp := range c.MountPoints {
		out.MountPoints = append(out.MountPoints, mp.Clone())
	}
	return out
}

// WithoutMountPoints returns a copy of c with the mount point list removed,
// for rendering the global section on its own.
func (c GlobalConfig) WithoutMountPoints() GlobalConfig {
	out := c.Clone()
	out.MountPoints = nil
	return out
}

// HasMatchHost reports whether the mount point is restricted to one host.
func (m MountPoint) HasMatchHost() bool {
	return m.MatchHost != ""
}

// Found reports whether m is a real record rather than the empty
// "no match" result.
func (m MountPoint) Found() bool {
	return m.Path != "" || m.Upstream != "" || m.MatchHost != "" || len(m.Middlewares) > 0
}

// Clone returns a deep copy of m.
func (m MountPoint) Clone() MountPoint {
	m.Middlewares = m.Middlewares.Clone()
	return m
}

// Clone returns a deep copy of s. A nil set stays nil.
func (s MiddlewareSet) Clone() MiddlewareSet {
	if s == nil {
		return nil
	}
	return MiddlewareSet(cloneAnyMap(s))
}

// Lookup walks nested maps along path.
func (s MiddlewareSet) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(s)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Duration returns the Duration leaf at path, if present.
func (s MiddlewareSet) Duration(path ...string) (Duration, bool) {
	v, ok := s.Lookup(path...)
	if !ok {
		return 0, false
	}
	d, ok := v.(Duration)
	return d, ok
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case MiddlewareSet:
		return m, true
	default:
		return nil, false
	}
}
