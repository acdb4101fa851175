package normalize

// shapeAdapter rewrites one historical payload shape into the flat shape the
// builder reads: top-level gateway, middlewares and mountPoints keys, with
// matchHost on each mount point. Adapters run in order and are no-ops when
// their shape is absent. Roots passed in are private copies.
type shapeAdapter struct {
	name  string
	apply func(root map[string]any) map[string]any
}

func defaultAdapters() []shapeAdapter {
	return []shapeAdapter{
		{name: "wrapped", apply: unwrapConfig},
		{name: "nested-match-host", apply: liftMatchHost},
		{name: "cache-ttl-alias", apply: aliasCacheTTL},
	}
}

// unwrapConfig handles payloads that carry the config under a lone
// "config" key.
func unwrapConfig(root map[string]any) map[string]any {
	for len(root) == 1 {
		inner, ok := root["config"].(map[string]any)
		if !ok {
			break
		}
		root = inner
	}
	return root
}

// liftMatchHost moves matchHost out of a mount point's middlewares block,
// where later gateway versions keep it, onto the mount point itself.
func liftMatchHost(root map[string]any) map[string]any {
	list, ok := root["mountPoints"].([]any)
	if !ok {
		return root
	}
	for _, item := range list {
		mp, ok := item.(map[string]any)
		if !ok {
			continue
		}
		mw, ok := mp["middlewares"].(map[string]any)
		if !ok {
			continue
		}
		nested, ok := mw["matchHost"]
		if !ok {
			continue
		}
		delete(mw, "matchHost")
		if scalarString(mp["matchHost"]) == "" {
			mp["matchHost"] = nested
		}
	}
	return root
}

// aliasCacheTTL renames cache.cacheTTL, the YAML spelling of the cache TTL,
// to the ttl key the JSON encoding uses. It covers the global middlewares and
// every mount point's overrides. An explicit ttl is kept.
func aliasCacheTTL(root map[string]any) map[string]any {
	renameCacheTTL(root["middlewares"])
	if list, ok := root["mountPoints"].([]any); ok {
		for _, item := range list {
			if mp, ok := item.(map[string]any); ok {
				renameCacheTTL(mp["middlewares"])
			}
		}
	}
	return root
}

func renameCacheTTL(middlewares any) {
	mw, ok := middlewares.(map[string]any)
	if !ok {
		return
	}
	cache, ok := mw["cache"].(map[string]any)
	if !ok {
		return
	}
	ttl, ok := cache["cacheTTL"]
	if !ok {
		return
	}
	delete(cache, "cacheTTL")
	if _, exists := cache["ttl"]; !exists {
		cache["ttl"] = ttl
	}
}
