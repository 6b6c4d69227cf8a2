// Package playlist implements the Playlist: an ordered sequence of
// track handles with a current index, wrap-around navigation, a
// uniform-random pick distinct from the current entry, and index-stable
// removal.
//
// This is deliberately a single navigation policy rather than the
// teacher's pluggable PlayMode strategy (internal/playlist/manager.go
// registers five interchangeable modes) — the design notes this was
// distilled from rule out runtime-selectable policies the same way they
// rule out a runtime-selectable backend; see DESIGN.md for the decision
// record.
package playlist

import (
	"math/rand"
	"sync"
	"time"

	"github.com/nots1dd/inlimbo-core/internal/registry"
)

// Playlist is mutex-guarded, mirroring the teacher's playlistManager
// (internal/playlist/manager.go), simplified to one navigation policy
// and no persistence (persistence is an external collaborator's
// concern).
type Playlist struct {
	mu      sync.RWMutex
	tracks  []registry.Handle
	current int
	rng     *rand.Rand
}

// New returns an empty playlist.
func New() *Playlist {
	return &Playlist{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Add appends h to the end of the playlist.
func (p *Playlist) Add(h registry.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, h)
}

// Current returns the track at the current index. ok is false for an
// empty playlist.
func (p *Playlist) Current() (registry.Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.tracks) == 0 {
		return 0, false
	}
	return p.tracks[p.current], true
}

// CurrentIndex returns the current index (0 for an empty playlist).
func (p *Playlist) CurrentIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Len reports the number of tracks in the playlist.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tracks)
}

// Next advances to the next track, wrapping from the last entry back to
// the first. ok is false for an empty playlist.
func (p *Playlist) Next() (registry.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tracks) == 0 {
		return 0, false
	}
	p.current = (p.current + 1) % len(p.tracks)
	return p.tracks[p.current], true
}

// Previous moves to the previous track, wrapping from the first entry
// to the last. ok is false for an empty playlist.
func (p *Playlist) Previous() (registry.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tracks) == 0 {
		return 0, false
	}
	p.current = (p.current - 1 + len(p.tracks)) % len(p.tracks)
	return p.tracks[p.current], true
}

// JumpTo sets the current index directly, reporting false (and leaving
// the index unchanged) if i is out of range.
func (p *Playlist) JumpTo(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return false
	}
	p.current = i
	return true
}

// Random picks a uniform-random track distinct from the current one
// whenever at least two tracks exist; with exactly one track it returns
// that track unchanged, and reports false for an empty playlist.
func (p *Playlist) Random() (registry.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.tracks)
	if n == 0 {
		return 0, false
	}
	if n == 1 {
		return p.tracks[0], true
	}
	next := p.rng.Intn(n - 1)
	if next >= p.current {
		next++
	}
	p.current = next
	return p.tracks[p.current], true
}

// RemoveAt erases the track at i. If i is the current index, the
// current index snaps to the track that shifted into its place (or the
// new last entry, if i was the last one); if i precedes the current
// index, the current index is decremented to keep pointing at the same
// track. Reports false (no change) for an out-of-range i.
func (p *Playlist) RemoveAt(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return false
	}
	p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)

	switch {
	case len(p.tracks) == 0:
		p.current = 0
	case p.current > i:
		p.current--
	case p.current >= len(p.tracks):
		p.current = len(p.tracks) - 1
	}
	return true
}

// Clear empties the playlist and resets the current index.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = nil
	p.current = 0
}

// Tracks returns a copy of the playlist's track handles in order.
func (p *Playlist) Tracks() []registry.Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]registry.Handle, len(p.tracks))
	copy(out, p.tracks)
	return out
}
