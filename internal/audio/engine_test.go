package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/nots1dd/inlimbo-core/internal/logx"
)

// fakeStreamer is an in-memory beep.StreamSeekCloser standing in for a
// real codec, so engine tests never touch a file or a real decoder.
type fakeStreamer struct {
	frames [][2]float64
	pos    int
	err    error
}

func (f *fakeStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if f.pos >= len(f.frames) {
		return 0, false
	}
	n = copy(samples, f.frames[f.pos:])
	f.pos += n
	return n, true
}
func (f *fakeStreamer) Err() error      { return f.err }
func (f *fakeStreamer) Len() int        { return len(f.frames) }
func (f *fakeStreamer) Position() int   { return f.pos }
func (f *fakeStreamer) Seek(p int) error {
	f.pos = p
	return nil
}
func (f *fakeStreamer) Close() error { return nil }

// fakeBackend is an in-memory Backend recording every write, used in
// place of PortAudioBackend so tests never touch a real device.
type fakeBackend struct {
	mu      sync.Mutex
	info    BackendInfo
	writes  [][]float32
	failNext bool
}

func newFakeBackend(sampleRate, channels int) *fakeBackend {
	return &fakeBackend{info: BackendInfo{SampleRate: sampleRate, Channels: channels, IsActive: true}}
}

func (b *fakeBackend) EnumerateDevices() ([]Device, error) { return nil, nil }
func (b *fakeBackend) InitForDevice(name string) error     { return nil }

func (b *fakeBackend) Write(interleaved []float32) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]float32, len(interleaved))
	copy(cp, interleaved)
	b.writes = append(b.writes, cp)
	b.info.WriteCalls++
	if b.failNext {
		b.failNext = false
		b.info.Xruns++
		return 0, nil
	}
	return len(interleaved) / b.info.Channels, nil
}

func (b *fakeBackend) Info() BackendInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}
func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes)
}

// newTestSound builds a Sound around a fakeStreamer, bypassing
// prepareSound's file I/O entirely.
func newTestSound(frames [][2]float64, target Format) *Sound {
	fs := &fakeStreamer{frames: frames}
	s := &Sound{
		raw:            fs,
		resampled:      fs,
		source:         target,
		target:         target,
		durationFrames: int64(len(frames)),
	}
	s.ring = NewRingBuffer(target.SampleRate*target.Channels, target.Channels)
	s.decodeScratch = make([][2]float64, 4096)
	return s
}

// newTrimmedTestSound is newTestSound plus an endSkipFrames trim, for
// exercising the gapless-tail-trim path directly.
func newTrimmedTestSound(frames [][2]float64, target Format, endSkipFrames int64) *Sound {
	s := newTestSound(frames, target)
	s.endSkipFrames = endSkipFrames
	s.rawStopFrame = int64(len(frames)) - endSkipFrames
	s.durationFrames = int64(len(frames)) - endSkipFrames
	return s
}

func testTarget() Format {
	return Format{SampleRate: 48000, Channels: 2, SampleFmt: SampleFormatFloat32, Layout: ChannelLayoutStereo}
}

func newTestEngine(backend *fakeBackend) *Engine {
	return NewEngine(backend, logx.New(nil))
}

func TestEngineDecodeStepFillsRing(t *testing.T) {
	target := testTarget()
	frames := make([][2]float64, 1000)
	for i := range frames {
		frames[i] = [2]float64{0.5, -0.5}
	}
	s := newTestSound(frames, target)

	e := newTestEngine(newFakeBackend(target.SampleRate, target.Channels))
	e.mu.Lock()
	e.sound = s
	e.mu.Unlock()
	e.state.Store(int32(StatePlaying))

	e.decodeStep()

	if got := s.ring.Available(); got != 2000 {
		t.Fatalf("ring available after decodeStep = %d, want 2000 (1000 frames x 2 channels)", got)
	}
}

func TestEngineDeviceWritePeriodAndVolume(t *testing.T) {
	target := testTarget()
	frames := make([][2]float64, framesPerPeriod*2)
	for i := range frames {
		frames[i] = [2]float64{1, 1}
	}
	s := newTestSound(frames, target)

	backend := newFakeBackend(target.SampleRate, target.Channels)
	e := newTestEngine(backend)
	e.mu.Lock()
	e.sound = s
	e.mu.Unlock()
	e.state.Store(int32(StatePlaying))
	e.SetVolume(0.5)

	e.decodeStep()
	e.deviceWrite()

	if backend.writeCount() != 1 {
		t.Fatalf("backend write count = %d, want 1", backend.writeCount())
	}
	last := backend.writes[0]
	if len(last) != framesPerPeriod*target.Channels {
		t.Fatalf("written buffer len = %d, want %d", len(last), framesPerPeriod*target.Channels)
	}
	if last[0] < 0.49 || last[0] > 0.51 {
		t.Fatalf("written sample = %v, want ~0.5 after 0.5x volume", last[0])
	}
}

func TestEngineUnderrunWritesSilenceNotFatal(t *testing.T) {
	target := testTarget()
	s := newTestSound(make([][2]float64, 10), target) // far fewer frames than one period, still mid-stream

	backend := newFakeBackend(target.SampleRate, target.Channels)
	e := newTestEngine(backend)
	e.mu.Lock()
	e.sound = s
	e.mu.Unlock()
	e.state.Store(int32(StatePlaying))

	// Manually leave the ring under-filled (10 frames < framesPerPeriod) and
	// eof unset, exercising deviceWrite's underrun path directly.
	s.ring.Write(make([]float32, 10*target.Channels))
	e.deviceWrite()

	if e.IsTrackFinished() {
		t.Fatal("an underrun with eof not yet reached must not mark the track finished")
	}
	if backend.writeCount() != 1 {
		t.Fatalf("backend write count = %d, want 1 (silence still written on underrun)", backend.writeCount())
	}
	last := backend.writes[0]
	for i, v := range last {
		if v != 0 {
			t.Fatalf("buf[%d] = %v, want 0 (underrun should write silence)", i, v)
		}
	}
	if got := e.BackendInfo().Xruns; got != 1 {
		t.Fatalf("BackendInfo().Xruns after one ring underrun = %d, want 1", got)
	}
}

func TestEngineUnderrunIncrementsXrunsRepeatedly(t *testing.T) {
	target := testTarget()
	s := newTestSound(make([][2]float64, 10), target)

	backend := newFakeBackend(target.SampleRate, target.Channels)
	e := newTestEngine(backend)
	e.mu.Lock()
	e.sound = s
	e.mu.Unlock()
	e.state.Store(int32(StatePlaying))

	s.ring.Write(make([]float32, 10*target.Channels))
	e.deviceWrite()
	e.deviceWrite()
	e.deviceWrite()

	if got := e.BackendInfo().Xruns; got != 3 {
		t.Fatalf("BackendInfo().Xruns after three ring underruns = %d, want 3", got)
	}
}

func TestEngineEOFMarksTrackFinished(t *testing.T) {
	target := testTarget()
	frames := [][2]float64{{0.1, 0.1}, {0.2, 0.2}}
	s := newTestSound(frames, target)

	backend := newFakeBackend(target.SampleRate, target.Channels)
	e := newTestEngine(backend)
	e.mu.Lock()
	e.sound = s
	e.mu.Unlock()
	e.state.Store(int32(StatePlaying))

	e.decodeStep() // decodes the 2 frames
	e.deviceWrite()
	e.decodeStep() // next Stream() call returns ok=false -> eof
	e.deviceWrite()

	if !e.IsTrackFinished() {
		t.Fatal("expected track finished after eof and ring fully drained")
	}
	if e.State() != StateStopped {
		t.Fatalf("state = %v, want Stopped after finish", e.State())
	}
}

func TestEngineEndSkipTrimsTrailingFrames(t *testing.T) {
	target := testTarget()
	frames := make([][2]float64, 20)
	for i := range frames {
		frames[i] = [2]float64{0.4, 0.4}
	}
	s := newTrimmedTestSound(frames, target, 5) // only the first 15 raw frames are usable

	backend := newFakeBackend(target.SampleRate, target.Channels)
	e := newTestEngine(backend)
	e.mu.Lock()
	e.sound = s
	e.mu.Unlock()
	e.state.Store(int32(StatePlaying))

	e.decodeStep() // decodes all 20 raw frames into scratch in one Stream call, ring write clamps to 15
	if got := s.cursorFrames.Load(); got != 15 {
		t.Fatalf("cursorFrames after decoding past the trimmed tail = %d, want 15", got)
	}
	if s.raw.Position() < 15 {
		t.Fatal("expected the underlying stream to have advanced past the usable region")
	}

	e.decodeStep() // raw.Position() >= rawStopFrame now -> synthetic end-of-stream
	if !s.eof.Load() {
		t.Fatal("expected eof once raw position reaches rawStopFrame")
	}
}

func TestEngineGaplessHandoff(t *testing.T) {
	target := testTarget()
	cur := newTestSound([][2]float64{{0.1, 0.1}}, target)
	next := newTestSound([][2]float64{{0.2, 0.2}, {0.3, 0.3}}, target)

	backend := newFakeBackend(target.SampleRate, target.Channels)
	e := newTestEngine(backend)
	e.mu.Lock()
	e.sound = cur
	e.nextSound = next
	e.mu.Unlock()
	e.state.Store(int32(StatePlaying))

	e.decodeStep() // drains cur's single frame
	e.decodeStep() // cur reports ok=false -> handoff to next

	e.mu.Lock()
	got := e.sound
	nextGone := e.nextSound
	e.mu.Unlock()

	if got != next {
		t.Fatal("expected engine to hand off to the queued gapless successor")
	}
	if nextGone != nil {
		t.Fatal("expected nextSound to be cleared after handoff")
	}
	if e.trackFinished.Load() {
		t.Fatal("gapless handoff should not mark the track finished")
	}
}

func TestEngineSeekResetsRingAndCursor(t *testing.T) {
	target := testTarget()
	frames := make([][2]float64, 2*target.SampleRate) // 2s, so a 1.0s seek is not clamped to the duration
	s := newTestSound(frames, target)

	e := newTestEngine(newFakeBackend(target.SampleRate, target.Channels))
	e.mu.Lock()
	e.sound = s
	e.mu.Unlock()
	e.state.Store(int32(StatePlaying))

	e.decodeStep() // fill some of the ring
	if s.ring.Available() == 0 {
		t.Fatal("expected ring to have samples before seeking")
	}

	e.SeekAbsolute(1.0)
	e.decodeStep() // applies the pending seek on this iteration

	if s.seekPending.Load() {
		t.Fatal("seek should no longer be pending after decodeStep applies it")
	}
	if s.ring.Available() != 0 {
		t.Fatal("ring should be cleared by a seek")
	}
	if got := s.CursorFrames(); got != target.SampleRate {
		t.Fatalf("cursor frames after seeking to 1.0s = %d, want %d", got, target.SampleRate)
	}
}

func TestEngineVolumeClamped(t *testing.T) {
	e := newTestEngine(newFakeBackend(48000, 2))
	e.SetVolume(10)
	if got := e.Volume(); got != 1.5 {
		t.Fatalf("Volume() after setting 10 = %v, want clamped 1.5", got)
	}
	e.SetVolume(-5)
	if got := e.Volume(); got != 0 {
		t.Fatalf("Volume() after setting -5 = %v, want clamped 0", got)
	}
}

func TestEngineShutdownIdempotent(t *testing.T) {
	backend := newFakeBackend(48000, 2)
	e := newTestEngine(backend)
	if err := e.InitForDevice(""); err != nil {
		t.Fatalf("InitForDevice: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := e.Shutdown(); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got: %v", err)
	}
}
