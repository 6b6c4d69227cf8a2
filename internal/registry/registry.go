// Package registry implements the Track Registry: the core's only
// record of a track's filesystem path and caller-supplied metadata,
// addressed by an opaque monotonic handle.
package registry

import "sync"

// Handle is an opaque track identifier. The zero value is the null
// handle and is never allocated by Register.
type Handle uint64

// Metadata is the caller-supplied snapshot attached to a registered
// track. The core never computes any of these fields itself — they
// come from a library-ingestion collaborator.
type Metadata struct {
	Title       string
	Artist      string
	Album       string
	Genre       string
	Year        int
	TrackNumber int
	DiscNumber  int
	Duration    float64 // seconds, as reported by the caller
	Bitrate     int
	FilePath    string
	ArtURL      string
	Lyrics      string
}

type entry struct {
	path     string
	metadata Metadata
}

// Registry maps monotonically allocated handles to an immutable
// {path, metadata} pair. Entries are never updated or removed; a
// registry's lifetime matches the Audio Service that owns it.
type Registry struct {
	mu      sync.RWMutex
	next    uint64
	entries map[Handle]entry
}

// New returns an empty registry whose first allocated handle is 1.
func New() *Registry {
	return &Registry{next: 1, entries: make(map[Handle]entry)}
}

// Register allocates a new handle for path/metadata and returns it.
// Concurrent calls each get a distinct handle; there is no dedup on
// path — the same file may be registered more than once under
// different handles.
func (r *Registry) Register(path string, md Metadata) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := Handle(r.next)
	r.next++
	r.entries[h] = entry{path: path, metadata: md}
	return h
}

// Path returns the filesystem path registered under h.
func (r *Registry) Path(h Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[h]
	return e.path, ok
}

// Metadata returns the metadata snapshot registered under h.
func (r *Registry) Metadata(h Handle) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[h]
	return e.metadata, ok
}

// Len reports how many tracks have been registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
