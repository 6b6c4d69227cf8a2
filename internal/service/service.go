// Package service implements the Audio Service: the single thread-safe
// entry point used by presenters. It wraps the engine, the playlist and
// the track registry behind one service mutex, mirroring the teacher's
// pattern of a façade struct guarding a handful of collaborators with a
// single sync.Mutex (internal/player + internal/playlist composed
// together at the command layer).
package service

import (
	"fmt"

	"github.com/nots1dd/inlimbo-core/internal/audio"
	"github.com/nots1dd/inlimbo-core/internal/logx"
	"github.com/nots1dd/inlimbo-core/internal/playlist"
	"github.com/nots1dd/inlimbo-core/internal/registry"

	"sync"
)

// NotInitializedError is returned by every operation that needs the
// engine when init_for_device has not yet been called, or shutdown has
// already run.
type NotInitializedError struct {
	Op string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("service: %s: engine not initialized", e.Op)
}

// TrackInfo is the presenter-facing read model combining engine
// position/length with backend format info.
type TrackInfo struct {
	PositionSec float64
	LengthSec   float64
	SampleRate  int
	Channels    int
	FormatName  string
	IsPlaying   bool
}

// Service is the single public entry point. Every method takes mu for
// its duration except WithAudioBuffer, which bypasses it entirely (see
// the engine's own copy-mutex for that path).
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	engine   *audio.Engine
	playlist *playlist.Playlist
	registry *registry.Registry

	initialized bool
}

// New constructs a Service bound to backend, not yet initialized for
// any device.
func New(backend audio.Backend, log logx.Logger) *Service {
	if log == nil {
		log = logx.New(nil)
	}
	return &Service{
		log:      log,
		engine:   audio.NewEngine(backend, log),
		playlist: playlist.New(),
		registry: registry.New(),
	}
}

// InitForDevice opens backend for deviceName and starts the audio
// thread. Calling it again re-targets the same engine at a new device.
func (s *Service) InitForDevice(deviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.InitForDevice(deviceName); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

// SetPreferMiniMP3 configures the MP3 decoder preference used by every
// subsequent Load/QueueNext.
func (s *Service) SetPreferMiniMP3(prefer bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetPreferMiniMP3(prefer)
}

// RegisterTrack allocates a handle for path/metadata. Never removes
// entries; the registry keeps growing for the service's lifetime.
func (s *Service) RegisterTrack(path string, md registry.Metadata) registry.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Register(path, md)
}

// AddToPlaylist appends h. The null handle is ignored.
func (s *Service) AddToPlaylist(h registry.Handle) {
	if h == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist.Add(h)
}

// ClearPlaylist empties the playlist; playback is left untouched.
func (s *Service) ClearPlaylist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist.Clear()
}

// RemoveFromPlaylist removes the track at i. Reports false for an
// out-of-range index.
func (s *Service) RemoveFromPlaylist(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlist.RemoveAt(i)
}

// CurrentTrack returns the playlist's current handle.
func (s *Service) CurrentTrack() (registry.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlist.Current()
}

// CurrentIndex returns the playlist's current index.
func (s *Service) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlist.CurrentIndex()
}

// PlaylistSize reports the number of tracks in the playlist.
func (s *Service) PlaylistSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlist.Len()
}

// loadCurrent loads the sound for the playlist's current handle, if
// any. Called with mu held.
func (s *Service) loadCurrent() error {
	h, ok := s.playlist.Current()
	if !ok {
		return nil
	}
	path, ok := s.registry.Path(h)
	if !ok {
		return fmt.Errorf("service: current handle %d has no registered path", h)
	}
	return s.engine.Load(path)
}

// Start loads the playlist's current track (if any) and begins
// playback.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "Start"}
	}
	if err := s.loadCurrent(); err != nil {
		return err
	}
	s.engine.Play()
	return nil
}

// PlayCurrent resumes or starts playback of the already-loaded sound.
func (s *Service) PlayCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "PlayCurrent"}
	}
	s.engine.Play()
	return nil
}

// PauseCurrent pauses playback.
func (s *Service) PauseCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "PauseCurrent"}
	}
	s.engine.Pause()
	return nil
}

// Stop halts playback, drops the loaded sound and discards any queued
// gapless successor.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "Stop"}
	}
	s.engine.Stop()
	return nil
}

// RestartCurrent seeks the current sound to the beginning and plays,
// even if playback was paused.
func (s *Service) RestartCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "RestartCurrent"}
	}
	s.engine.Restart()
	return nil
}

// NextTrack advances the playlist, loads the new current track and
// starts playback. Returns the new handle, or the null handle and a nil
// error if the playlist is empty.
func (s *Service) NextTrack() (registry.Handle, error) {
	return s.advance(s.playlist.Next, "NextTrack")
}

// PreviousTrack moves the playlist back, loads the new current track
// and starts playback.
func (s *Service) PreviousTrack() (registry.Handle, error) {
	return s.advance(s.playlist.Previous, "PreviousTrack")
}

// RandomTrack jumps the playlist to a uniform-random track distinct
// from the current one, loads it and starts playback.
func (s *Service) RandomTrack() (registry.Handle, error) {
	return s.advance(s.playlist.Random, "RandomTrack")
}

func (s *Service) advance(move func() (registry.Handle, bool), op string) (registry.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0, &NotInitializedError{Op: op}
	}
	h, ok := move()
	if !ok {
		return 0, nil
	}
	if err := s.loadCurrent(); err != nil {
		return 0, err
	}
	s.engine.Play()
	return h, nil
}

// NextTrackGapless advances the playlist and, instead of reloading the
// engine immediately, queues the new current track as the engine's
// gapless successor — the engine swaps it in without a reload once the
// current track reaches natural end-of-stream.
func (s *Service) NextTrackGapless() (registry.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0, &NotInitializedError{Op: "NextTrackGapless"}
	}
	h, ok := s.playlist.Next()
	if !ok {
		return 0, nil
	}
	path, ok := s.registry.Path(h)
	if !ok {
		return 0, fmt.Errorf("service: handle %d has no registered path", h)
	}
	if err := s.engine.QueueNext(path); err != nil {
		return 0, err
	}
	return h, nil
}

// SeekAbsolute seeks the current sound to positionSec.
func (s *Service) SeekAbsolute(positionSec float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "SeekAbsolute"}
	}
	s.engine.SeekAbsolute(positionSec)
	return nil
}

// SeekForward seeks deltaSec forward from the current position.
func (s *Service) SeekForward(deltaSec float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "SeekForward"}
	}
	s.engine.SeekForward(deltaSec)
	return nil
}

// SeekBackward seeks deltaSec backward from the current position.
func (s *Service) SeekBackward(deltaSec float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "SeekBackward"}
	}
	s.engine.SeekBackward(deltaSec)
	return nil
}

// SetVolume sets playback volume, clamped by the engine to [0, 1.5].
func (s *Service) SetVolume(v float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Op: "SetVolume"}
	}
	s.engine.SetVolume(v)
	return nil
}

// GetVolume returns the current clamped volume.
func (s *Service) GetVolume() (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0, &NotInitializedError{Op: "GetVolume"}
	}
	return s.engine.Volume(), nil
}

// GetCurrentTrackInfo combines engine playback time with backend format
// info. ok is false if no sound is loaded.
func (s *Service) GetCurrentTrackInfo() (TrackInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return TrackInfo{}, false, &NotInitializedError{Op: "GetCurrentTrackInfo"}
	}
	pos, length, ok := s.engine.PlaybackTime()
	if !ok {
		return TrackInfo{}, false, nil
	}
	info := s.engine.BackendInfo()
	return TrackInfo{
		PositionSec: pos,
		LengthSec:   length,
		SampleRate:  info.SampleRate,
		Channels:    info.Channels,
		FormatName:  info.PCMFormat,
		IsPlaying:   s.engine.State() == audio.StatePlaying,
	}, true, nil
}

// GetCurrentMetadata looks up the metadata for the playlist's current
// track.
func (s *Service) GetCurrentMetadata() (registry.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.playlist.Current()
	if !ok {
		return registry.Metadata{}, false
	}
	return s.registry.Metadata(h)
}

// GetMetadataAt looks up the metadata for the track at playlist index
// i.
func (s *Service) GetMetadataAt(i int) (registry.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracks := s.playlist.Tracks()
	if i < 0 || i >= len(tracks) {
		return registry.Metadata{}, false
	}
	return s.registry.Metadata(tracks[i])
}

// WithAudioBuffer invokes fn with the most recent decoded-and-resampled
// interleaved window, for visualization. It bypasses the service mutex
// entirely — the engine guards this path with its own dedicated copy
// mutex, the same way the audio thread's hot path never blocks on
// façade state (see engine.go).
func (s *Service) WithAudioBuffer(fn func([]float32)) {
	s.engine.WithAudioBuffer(fn)
}

// EnumerateDevices lists the playback devices the backend can see.
func (s *Service) EnumerateDevices() ([]audio.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.EnumerateDevices()
}

// GetBackendInfo snapshots the backend's current negotiated format and
// counters.
func (s *Service) GetBackendInfo() (audio.BackendInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return audio.BackendInfo{}, &NotInitializedError{Op: "GetBackendInfo"}
	}
	return s.engine.BackendInfo(), nil
}

// IsTrackFinished reports whether the current sound reached natural
// end-of-stream since the last ClearTrackFinishedFlag.
func (s *Service) IsTrackFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.IsTrackFinished()
}

// ClearTrackFinishedFlag resets the track-finished flag.
func (s *Service) ClearTrackFinishedFlag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.ClearTrackFinished()
}

// Shutdown stops playback, releases the device and marks the service
// unusable. Idempotent; safe to call without a prior InitForDevice.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	s.initialized = false
	return s.engine.Shutdown()
}
