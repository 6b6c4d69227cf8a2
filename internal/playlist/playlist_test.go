package playlist

import (
	"testing"

	"github.com/nots1dd/inlimbo-core/internal/registry"
)

func TestEmptyPlaylist(t *testing.T) {
	p := New()
	if _, ok := p.Current(); ok {
		t.Fatal("Current() on an empty playlist should report ok=false")
	}
	if _, ok := p.Next(); ok {
		t.Fatal("Next() on an empty playlist should report ok=false")
	}
	if _, ok := p.Random(); ok {
		t.Fatal("Random() on an empty playlist should report ok=false")
	}
}

func TestNextWrapsAround(t *testing.T) {
	p := New()
	for i := 1; i <= 3; i++ {
		p.Add(registry.Handle(i))
	}
	// current starts at index 0 (handle 1).
	if h, _ := p.Next(); h != 2 {
		t.Fatalf("Next() = %d, want 2", h)
	}
	if h, _ := p.Next(); h != 3 {
		t.Fatalf("Next() = %d, want 3", h)
	}
	if h, _ := p.Next(); h != 1 {
		t.Fatalf("Next() wraparound = %d, want 1", h)
	}
}

func TestPreviousWrapsAround(t *testing.T) {
	p := New()
	for i := 1; i <= 3; i++ {
		p.Add(registry.Handle(i))
	}
	if h, _ := p.Previous(); h != 3 {
		t.Fatalf("Previous() wraparound = %d, want 3", h)
	}
	if h, _ := p.Previous(); h != 2 {
		t.Fatalf("Previous() = %d, want 2", h)
	}
}

func TestJumpTo(t *testing.T) {
	p := New()
	for i := 1; i <= 3; i++ {
		p.Add(registry.Handle(i))
	}
	if !p.JumpTo(2) {
		t.Fatal("JumpTo(2) should succeed for a 3-track playlist")
	}
	if h, _ := p.Current(); h != 3 {
		t.Fatalf("Current() after JumpTo(2) = %d, want 3", h)
	}
	if p.JumpTo(5) {
		t.Fatal("JumpTo(5) should fail for a 3-track playlist")
	}
	if h, _ := p.Current(); h != 3 {
		t.Fatal("a failed JumpTo must not change the current index")
	}
}

func TestRandomSingleTrackReturnsItUnchanged(t *testing.T) {
	p := New()
	p.Add(registry.Handle(1))
	h, ok := p.Random()
	if !ok || h != 1 {
		t.Fatalf("Random() on a single-track playlist = %d, %v; want 1, true", h, ok)
	}
}

func TestRandomNeverReturnsCurrent(t *testing.T) {
	p := New()
	for i := 1; i <= 5; i++ {
		p.Add(registry.Handle(i))
	}
	for i := 0; i < 200; i++ {
		before, _ := p.Current()
		got, ok := p.Random()
		if !ok {
			t.Fatal("Random() on a non-empty playlist should always succeed")
		}
		if got == before {
			t.Fatalf("Random() returned the same handle as current (%d) with %d tracks available", got, p.Len())
		}
	}
}

func TestRemoveAtBeforeCurrentDecrementsCurrent(t *testing.T) {
	p := New()
	for i := 1; i <= 4; i++ {
		p.Add(registry.Handle(i))
	}
	p.JumpTo(2) // current handle = 3

	if !p.RemoveAt(0) { // remove handle 1, before current
		t.Fatal("RemoveAt(0) should succeed")
	}
	if got := p.CurrentIndex(); got != 1 {
		t.Fatalf("CurrentIndex() after removing before current = %d, want 1", got)
	}
	if h, _ := p.Current(); h != 3 {
		t.Fatalf("Current() after removing before current = %d, want 3 (same track)", h)
	}
}

func TestRemoveAtCurrentSnapsToNext(t *testing.T) {
	p := New()
	for i := 1; i <= 4; i++ {
		p.Add(registry.Handle(i))
	}
	p.JumpTo(1) // current handle = 2

	if !p.RemoveAt(1) {
		t.Fatal("RemoveAt(1) should succeed")
	}
	if h, _ := p.Current(); h != 3 {
		t.Fatalf("Current() after removing the current track = %d, want 3 (the track that shifted into its place)", h)
	}
}

func TestRemoveAtLastTrackWhenCurrentSnapsToNewLast(t *testing.T) {
	p := New()
	for i := 1; i <= 3; i++ {
		p.Add(registry.Handle(i))
	}
	p.JumpTo(2) // current handle = 3, the last track

	if !p.RemoveAt(2) {
		t.Fatal("RemoveAt(2) should succeed")
	}
	if h, _ := p.Current(); h != 2 {
		t.Fatalf("Current() after removing the last (and current) track = %d, want 2 (new last)", h)
	}
}

func TestRemoveAtEmptiesPlaylist(t *testing.T) {
	p := New()
	p.Add(registry.Handle(1))
	if !p.RemoveAt(0) {
		t.Fatal("RemoveAt(0) should succeed")
	}
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", p.Len())
	}
	if got := p.CurrentIndex(); got != 0 {
		t.Fatalf("CurrentIndex() after emptying = %d, want 0", got)
	}
}

func TestRemoveAtOutOfRangeFails(t *testing.T) {
	p := New()
	p.Add(registry.Handle(1))
	if p.RemoveAt(5) {
		t.Fatal("RemoveAt(5) should fail for a 1-track playlist")
	}
}

func TestClear(t *testing.T) {
	p := New()
	for i := 1; i <= 3; i++ {
		p.Add(registry.Handle(i))
	}
	p.JumpTo(2)
	p.Clear()
	if p.Len() != 0 {
		t.Fatalf("Len() after Clear() = %d, want 0", p.Len())
	}
	if _, ok := p.Current(); ok {
		t.Fatal("Current() after Clear() should report ok=false")
	}
}
