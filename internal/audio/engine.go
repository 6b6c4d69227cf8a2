package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nots1dd/inlimbo-core/internal/logx"
	"github.com/nots1dd/inlimbo-core/utils/errorx"
)

// PlaybackState is the engine's coarse playback state, read and written
// as a lock-free atomic by both the audio thread and façade callers.
type PlaybackState int32

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
)

const (
	framesPerPeriod      = 512
	idleSleep            = 5 * time.Millisecond
	decodeErrorTolerance = 8 // consecutive transient decode errors tolerated before giving up on a sound
)

// Engine is the playback engine: one dedicated audio-thread goroutine
// running decode_step + device-write, a current Sound and an optional
// queued gapless successor, and the volume/state/visualization surface
// a façade reads concurrently.
//
// The engine mutex guards only rebinding the sound/nextSound pointers,
// never dereferencing them — callers capture the pointer under the lock
// and then operate on it unlocked. In the original C++ design that
// safety boundary is enforced with a shared_ptr atomic refcount; Go's
// garbage collector already guarantees a captured *Sound stays valid
// memory for as long as a goroutine holds it, so no manual refcounting
// is introduced here. The one residual race — the audio thread mid-step
// on a sound another goroutine is concurrently Close()ing — surfaces at
// worst as one transient decode error, already tolerated below.
type Engine struct {
	backend Backend
	log     logx.Logger

	mu        sync.Mutex
	sound     *Sound
	nextSound *Sound

	state         atomic.Int32
	volumeBits    atomic.Uint32
	trackFinished atomic.Bool

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	preferMiniMP3 bool
	prepSF        singleflight.Group

	copyMu  sync.Mutex
	copyBuf []float32
	copySeq atomic.Uint64

	// ringUnderruns counts decoder-stalled underruns observed in
	// deviceWrite — distinct from the backend's own device-level Xruns
	// counter (backend_portaudio.go), since stalling the decoder never
	// touches the device write-error path at all. Folded into
	// BackendInfo.Xruns by BackendInfo() below.
	ringUnderruns atomic.Uint64

	decodeErrRun int // audio-thread only; never touched elsewhere
}

// NewEngine wires a backend and logger into a fresh, not-yet-running
// engine. Call InitForDevice to negotiate a device and start the audio
// thread.
func NewEngine(backend Backend, log logx.Logger) *Engine {
	e := &Engine{
		backend: backend,
		log:     log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	e.state.Store(int32(StateStopped))
	e.volumeBits.Store(math.Float32bits(1.0))
	return e
}

// SetPreferMiniMP3 toggles the low-footprint MP3 decode path used by
// subsequently prepared sounds.
func (e *Engine) SetPreferMiniMP3(prefer bool) { e.preferMiniMP3 = prefer }

func (e *Engine) targetFormat() Format {
	info := e.backend.Info()
	sr := info.SampleRate
	if sr <= 0 {
		sr = DefaultSoundSampleRate
	}
	ch := info.Channels
	if ch <= 0 {
		ch = DefaultSoundChannels
	}
	return Format{SampleRate: sr, Channels: ch, SampleFmt: SampleFormatFloat32, Layout: layoutFor(ch)}
}

// InitForDevice negotiates the backend against the named device and
// starts the audio thread (once; subsequent calls just renegotiate the
// backend, the thread keeps running).
func (e *Engine) InitForDevice(name string) error {
	if err := e.backend.InitForDevice(name); err != nil {
		return err
	}
	if e.running.CompareAndSwap(false, true) {
		errorx.Go(e.audioLoop, true)
	}
	return nil
}

// Load replaces the current sound with a freshly prepared one for path,
// discarding any queued gapless successor. A failed load leaves the
// previous sound (and playback state) untouched.
func (e *Engine) Load(path string) error {
	target := e.targetFormat()
	s, err := prepareSound(path, target, e.preferMiniMP3)
	if err != nil {
		return err
	}

	e.mu.Lock()
	oldSound, oldNext := e.sound, e.nextSound
	e.sound = s
	e.nextSound = nil
	e.mu.Unlock()

	if oldSound != nil {
		_ = oldSound.Close()
	}
	if oldNext != nil {
		_ = oldNext.Close()
	}

	e.state.Store(int32(StateStopped))
	e.trackFinished.Store(false)
	return nil
}

// QueueNext prepares path as the gapless successor to the current
// sound: when the current sound reaches end-of-stream, decodeStep hands
// off to it without a gap. Concurrent QueueNext calls for the same path
// are deduped via singleflight so a duplicate request never decodes the
// file twice.
func (e *Engine) QueueNext(path string) error {
	target := e.targetFormat()
	v, err, _ := e.prepSF.Do(path, func() (any, error) {
		return prepareSound(path, target, e.preferMiniMP3)
	})
	if err != nil {
		return err
	}
	s := v.(*Sound)

	e.mu.Lock()
	old := e.nextSound
	e.nextSound = s
	e.mu.Unlock()

	if old != nil && old != s {
		_ = old.Close()
	}
	return nil
}

// Play transitions to Playing if a sound is loaded; otherwise it is a
// no-op.
func (e *Engine) Play() {
	e.mu.Lock()
	has := e.sound != nil
	e.mu.Unlock()
	if !has {
		return
	}
	e.state.Store(int32(StatePlaying))
}

// Pause transitions Playing -> Paused; a no-op from any other state.
func (e *Engine) Pause() {
	e.state.CompareAndSwap(int32(StatePlaying), int32(StatePaused))
}

// Stop transitions to Stopped, drops the current sound and discards any
// queued gapless successor (an explicit stop cancels the handoff, it
// does not defer it).
func (e *Engine) Stop() {
	e.state.Store(int32(StateStopped))
	e.mu.Lock()
	oldSound, oldNext := e.sound, e.nextSound
	e.sound, e.nextSound = nil, nil
	e.mu.Unlock()
	if oldSound != nil {
		_ = oldSound.Close()
	}
	if oldNext != nil {
		_ = oldNext.Close()
	}
}

// Restart seeks the current sound to the beginning and plays — restart
// implies play even when called from Paused.
func (e *Engine) Restart() {
	e.SeekAbsolute(0)
	e.Play()
}

// SeekAbsolute requests a seek to the given position in seconds. A
// no-op with no sound loaded.
func (e *Engine) SeekAbsolute(seconds float64) {
	e.mu.Lock()
	s := e.sound
	e.mu.Unlock()
	if s == nil {
		return
	}
	s.requestSeek(int64(seconds * float64(s.target.SampleRate)))
}

// SeekForward/SeekBackward request a seek relative to the current
// cursor position.
func (e *Engine) SeekForward(seconds float64)  { e.seekRelative(seconds) }
func (e *Engine) SeekBackward(seconds float64) { e.seekRelative(-seconds) }

func (e *Engine) seekRelative(deltaSeconds float64) {
	e.mu.Lock()
	s := e.sound
	e.mu.Unlock()
	if s == nil {
		return
	}
	delta := int64(deltaSeconds * float64(s.target.SampleRate))
	s.requestSeek(s.CursorFrames() + delta)
}

// PlaybackTime reports the current sound's position and length in
// seconds. ok is false when no sound is loaded.
func (e *Engine) PlaybackTime() (positionSec, lengthSec float64, ok bool) {
	e.mu.Lock()
	s := e.sound
	e.mu.Unlock()
	if s == nil {
		return 0, 0, false
	}
	rate := float64(s.target.SampleRate)
	if rate <= 0 {
		rate = DefaultSoundSampleRate
	}
	return float64(s.CursorFrames()) / rate, float64(s.DurationFrames()) / rate, true
}

// SetVolume clamps v to [0, 1.5] and stores it.
func (e *Engine) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1.5 {
		v = 1.5
	}
	e.volumeBits.Store(math.Float32bits(v))
}

func (e *Engine) Volume() float32 { return math.Float32frombits(e.volumeBits.Load()) }

func (e *Engine) State() PlaybackState { return PlaybackState(e.state.Load()) }

func (e *Engine) IsTrackFinished() bool { return e.trackFinished.Load() }
func (e *Engine) ClearTrackFinished()   { e.trackFinished.Store(false) }

// BackendInfo returns the backend's snapshot with Xruns widened to also
// include ring underruns caused by a stalled decoder — §8 scenario 5
// requires stalling the decoder thread alone to move this counter, which
// never reaches the backend's own device-level write-error path.
func (e *Engine) BackendInfo() BackendInfo {
	info := e.backend.Info()
	info.Xruns += e.ringUnderruns.Load()
	return info
}

func (e *Engine) EnumerateDevices() ([]Device, error) { return e.backend.EnumerateDevices() }

// WithAudioBuffer runs fn with the most recently committed output
// window, held valid for fn's duration under the engine's own
// dedicated copy mutex (never the caller's lock).
func (e *Engine) WithAudioBuffer(fn func([]float32)) {
	e.copyMu.Lock()
	defer e.copyMu.Unlock()
	fn(e.copyBuf)
}

func (e *Engine) CopySequence() uint64 { return e.copySeq.Load() }

// Shutdown stops the audio thread, joins it, and only then closes the
// backend — the join must happen before Close so an in-flight
// decodeStep/deviceWrite iteration never races a concurrent stream
// teardown (PortAudioBackend.Close frees the underlying cgo stream;
// Write dereferences it after releasing its own lock, so the two must
// never run concurrently). Idempotent — a second call is a no-op.
func (e *Engine) Shutdown() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	e.state.Store(int32(StateStopped))
	close(e.stopCh)
	<-e.doneCh

	err := e.backend.Close()

	e.mu.Lock()
	sound, next := e.sound, e.nextSound
	e.sound, e.nextSound = nil, nil
	e.mu.Unlock()

	if sound != nil {
		_ = sound.Close()
	}
	if next != nil {
		_ = next.Close()
	}
	return err
}

func (e *Engine) audioLoop() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}
		if PlaybackState(e.state.Load()) == StatePlaying {
			e.decodeStep()
			e.deviceWrite()
		} else {
			time.Sleep(idleSleep)
		}
	}
}

// decodeStep applies a pending seek or pulls the next batch of decoded
// frames into the current sound's ring buffer. Audio-thread only.
func (e *Engine) decodeStep() {
	e.mu.Lock()
	s := e.sound
	e.mu.Unlock()
	if s == nil {
		e.state.Store(int32(StateStopped))
		return
	}

	if s.seekPending.Load() {
		s.performSeek()
		return
	}
	if s.eof.Load() {
		return
	}

	// A nonzero endSkipFrames means the container has trailing gapless
	// padding to trim — stop feeding the ring once raw decode position
	// reaches that point, exactly as if the stream had ended cleanly.
	if s.endSkipFrames > 0 && int64(s.raw.Position()) >= s.rawStopFrame {
		e.handleDecodeEnd(s)
		return
	}

	n, ok := s.decodeFrames(s.decodeScratch)
	if n > 0 {
		e.writeFramesToRing(s, s.decodeScratch[:n])
		e.decodeErrRun = 0
	}
	if !ok {
		e.handleDecodeEnd(s)
	}
}

func (e *Engine) writeFramesToRing(s *Sound, frames [][2]float64) {
	n := len(frames)
	// durationFrames already accounts for startSkip/endSkip trimming
	// (see prepareSound): never write past it, so a decode batch that
	// straddles the trimmed tail boundary doesn't leak padding frames
	// into the ring.
	if s.durationFrames > 0 {
		if remaining := s.durationFrames - s.cursorFrames.Load(); remaining < int64(n) {
			if remaining < 0 {
				remaining = 0
			}
			n = int(remaining)
		}
	}
	space := s.ring.Space() / s.target.Channels
	if n > space {
		n = space
	}
	if n == 0 {
		return
	}
	buf := make([]float32, n*s.target.Channels)
	for i := 0; i < n; i++ {
		buf[i*s.target.Channels] = float32(frames[i][0])
		if s.target.Channels > 1 {
			buf[i*s.target.Channels+1] = float32(frames[i][1])
		}
	}
	s.ring.Write(buf)
	s.cursorFrames.Add(int64(n))
}

// handleDecodeEnd runs when a Stream call reports no more frames. A
// genuine decode error is tolerated for a short run of consecutive
// occurrences (category-3 transient errors, §7) before being treated as
// end-of-stream; a clean EOF hands off to a queued gapless successor
// immediately.
func (e *Engine) handleDecodeEnd(s *Sound) {
	if err := s.raw.Err(); err != nil {
		e.decodeErrRun++
		if e.log != nil {
			e.log.Debug("transient decode error", "path", s.path, "error", err.Error(), "run", e.decodeErrRun)
		}
		if e.decodeErrRun <= decodeErrorTolerance {
			return
		}
	}

	e.mu.Lock()
	next := e.nextSound
	if next != nil {
		e.sound = next
		e.nextSound = nil
	}
	e.mu.Unlock()

	if next != nil {
		_ = s.Close()
		e.decodeErrRun = 0
		return
	}
	s.eof.Store(true)
}

// deviceWrite drains one period's worth of frames from the current
// sound's ring buffer, applies volume, and writes to the backend. A
// ring underrun (not yet eof) writes silence rather than blocking;
// hitting eof with a drained ring marks the track finished and stops.
func (e *Engine) deviceWrite() {
	e.mu.Lock()
	s := e.sound
	e.mu.Unlock()
	if s == nil {
		return
	}

	channels := s.target.Channels
	avail := s.ring.Available() / channels

	n := framesPerPeriod
	underrun := false
	if avail < framesPerPeriod {
		if s.eof.Load() {
			n = avail
		} else {
			underrun = true
			n = 0
			e.ringUnderruns.Add(1)
		}
	}

	buf := make([]float32, framesPerPeriod*channels)
	if n > 0 {
		out := make([]float32, n*channels)
		s.ring.Read(out)
		copy(buf, out)
	}

	vol := e.Volume()
	if vol != 1.0 {
		for i := range buf {
			buf[i] *= vol
		}
	}

	if _, err := e.backend.Write(buf); err != nil && e.log != nil {
		e.log.Error("device write failed", "error", err.Error())
	}

	e.publishVisualization(buf)

	if underrun {
		return
	}
	if n < framesPerPeriod && s.eof.Load() {
		e.trackFinished.Store(true)
		e.state.Store(int32(StateStopped))
	}
}

func (e *Engine) publishVisualization(window []float32) {
	e.copyMu.Lock()
	if cap(e.copyBuf) < len(window) {
		e.copyBuf = make([]float32, len(window))
	}
	e.copyBuf = e.copyBuf[:len(window)]
	copy(e.copyBuf, window)
	e.copyMu.Unlock()
	e.copySeq.Add(1)
}
