// Package migrations collects the SQL filesystems a host feeds into its
// migration runner and validates the resulting schema.
package migrations

import (
	"io/fs"
	"sync"

	magiclink "github.com/goliatone/go-magiclink"
)

// CoreSource names the token and user table migrations shipped with the module.
const CoreSource = "core"

// Source is a named migration filesystem rooted where postgres files live,
// with sqlite overrides under sqlite/.
type Source struct {
	Name string
	FS   fs.FS
}

var (
	mu      sync.RWMutex
	sources []Source
)

func init() {
	core, err := Core()
	if err == nil {
		Register(CoreSource, core)
	}
}

// Core returns the embedded migrations rooted at data/sql/migrations.
func Core() (fs.FS, error) {
	return fs.Sub(magiclink.GetMigrationsFS(), "data/sql/migrations")
}

// Register adds or replaces the source called name. Hosts that keep users in
// their own table register an extra source after the core one.
func Register(name string, fsys fs.FS) {
	if fsys == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	for i := range sources {
		if sources[i].Name == name {
			sources[i].FS = fsys
			return
		}
	}
	sources = append(sources, Source{Name: name, FS: fsys})
}

// Sources returns the registered sources in registration order.
func Sources() []Source {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Source, len(sources))
	copy(out, sources)
	return out
}

// Filesystems returns only the filesystems of Sources.
func Filesystems() []fs.FS {
	list := Sources()
	out := make([]fs.FS, 0, len(list))
	for _, src := range list {
		out = append(out, src.FS)
	}
	return out
}
