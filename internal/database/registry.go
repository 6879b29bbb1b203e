package database

import (
	"sort"
	"sync"

	"github.com/koustreak/vtapi/internal/errs"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Backend{}
)

// Register makes a backend available under tag. Backend packages call it
// from init; registering a tag twice panics.
func Register(tag string, b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if b == nil {
		panic("database: Register backend is nil")
	}
	if _, dup := registry[tag]; dup {
		panic("database: Register called twice for backend " + tag)
	}
	registry[tag] = b
}

// Lookup parses conn and returns the backend it selects.
func Lookup(conn string) (Backend, ConnInfo, error) {
	info, err := ParseConnInfo(conn)
	if err != nil {
		return nil, info, err
	}
	registryMu.RLock()
	b, ok := registry[info.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, info, errs.Newf(errs.ErrKindConfig, "backend %q is not compiled in", info.Backend)
	}
	return b, info, nil
}

// Backends lists the registered tags in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
