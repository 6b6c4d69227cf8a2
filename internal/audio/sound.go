package audio

import (
	"os"
	"sync/atomic"

	"github.com/gopxl/beep"
)

const (
	ringBufferSeconds     = 5.0
	decodeBufferSeconds   = 0.5
	minDecodeBufferFrames = 4096
	resampleQuality       = 4

	// DefaultSoundSampleRate and DefaultSoundChannels are the target
	// format used whenever a backend hasn't negotiated one yet (device
	// enumeration or an engine that failed InitForDevice).
	DefaultSoundSampleRate = 48000
	DefaultSoundChannels   = 2
)

// Sound is one loaded, decodable track bound to a fixed target device
// format. It owns the file handle, the beep decode chain, its own ring
// buffer and decode scratch space, and the atomics the audio thread
// reads/writes every step: cursorFrames, the pending-seek pair, and eof.
//
// A Sound is prepared off the audio thread (prepareSound) — preparation
// is the one phase that can block on file I/O and codec setup, so it
// never runs on the goroutine that also has to keep the device fed.
// From then on only the audio thread decodes it and applies seeks (any
// goroutine may request one). It is closed by whichever goroutine
// retires it: the audio thread on a gapless hand-off, otherwise the
// caller of Load, QueueNext, Stop or Shutdown.
type Sound struct {
	path string
	file *os.File

	raw       beep.StreamSeekCloser
	resampled beep.Streamer

	source Format
	target Format

	durationFrames int64

	// startSkipFrames/endSkipFrames are container-level gapless padding
	// to trim, in source-rate (raw, pre-resample) frames. rawStopFrame
	// is the absolute raw.Position() at which decoding should behave as
	// though the stream had ended, derived from endSkipFrames; it is
	// only consulted when endSkipFrames > 0.
	startSkipFrames int64
	endSkipFrames   int64
	rawStopFrame    int64

	cursorFrames    atomic.Int64
	seekTargetFrame atomic.Int64
	seekPending     atomic.Bool
	eof             atomic.Bool

	ring          *RingBuffer
	decodeScratch [][2]float64
}

// prepareSound opens path, selects a decoder, and allocates the ring
// and decode-scratch buffers sized against target. It never mutates any
// engine state — callers decide whether the result becomes the current
// sound or a queued gapless successor.
func prepareSound(path string, target Format, preferMiniMP3 bool) (*Sound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	kind := sniffContainer(path)
	if kind == containerUnknown {
		f.Close()
		return nil, &LoadError{Path: path, Err: ErrUnsupportedCodec}
	}

	raw, format, err := decodeStream(kind, f, preferMiniMP3)
	if err != nil {
		f.Close()
		return nil, &LoadError{Path: path, Err: err}
	}

	startSkip, endSkip := gaplessTrim(kind, raw)
	if startSkip > 0 {
		_ = raw.Seek(int(startSkip))
	}

	s := &Sound{
		path:            path,
		file:            f,
		raw:             raw,
		source:          Format{SampleRate: int(format.SampleRate), Channels: format.NumChannels, SampleFmt: SampleFormatFloat32, Layout: layoutFor(format.NumChannels)},
		target:          target,
		startSkipFrames: startSkip,
		endSkipFrames:   endSkip,
	}

	if n := raw.Len(); n > 0 && format.SampleRate > 0 {
		usable := int64(n) - startSkip - endSkip
		if usable < 0 {
			usable = 0
		}
		s.durationFrames = usable * int64(target.SampleRate) / int64(format.SampleRate)
		if endSkip > 0 {
			s.rawStopFrame = int64(n) - endSkip
		}
	}

	s.resampled = resampleIfNeeded(raw, format.SampleRate, beep.SampleRate(target.SampleRate))

	ringFrames := int(ringBufferSeconds * float64(target.SampleRate))
	s.ring = NewRingBuffer(ringFrames*target.Channels, target.Channels)

	decodeFrames := int(decodeBufferSeconds * float64(target.SampleRate))
	if decodeFrames < minDecodeBufferFrames {
		decodeFrames = minDecodeBufferFrames
	}
	s.decodeScratch = make([][2]float64, decodeFrames)

	return s, nil
}

// gaplessTrim reports the container-level start/end padding to trim for
// gapless playback, in source-rate frames — e.g. the encoder delay and
// padding a LAME/iTunes gapless header records for an MP3. None of the
// beep decoders wired in decoder.go (mp3/flac/vorbis/wav/minimp3)
// surface that metadata today, so this always returns zero; the fields
// and the trim path around it (raw.Seek on load, rawStopFrame in
// decodeStep) exist so a decoder that does expose it only needs to fill
// in this function.
func gaplessTrim(kind containerKind, raw beep.StreamSeekCloser) (startSkip, endSkip int64) {
	return 0, 0
}

func resampleIfNeeded(s beep.Streamer, old, new beep.SampleRate) beep.Streamer {
	if old == new || old <= 0 {
		return s
	}
	return beep.Resample(resampleQuality, old, new, s)
}

// Close releases the decoder and the underlying file. Safe to call
// exactly once, after the sound is retired: the audio thread calls it on
// a gapless hand-off; Load, QueueNext, Stop and Shutdown call it on the
// calling goroutine.
func (s *Sound) Close() error {
	err := s.raw.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// CursorFrames returns the number of target-rate frames already written
// to the ring buffer (and so already emitted toward the device).
func (s *Sound) CursorFrames() int64 { return s.cursorFrames.Load() }

// DurationFrames returns the track's estimated length in target-rate
// frames, or 0 when the decoder couldn't report a length (some
// streamed/minimp3 sources never know their own length up front).
func (s *Sound) DurationFrames() int64 { return s.durationFrames }

// requestSeek records a pending seek to be applied by the audio thread
// on its next decodeStep; it is safe to call from any goroutine.
func (s *Sound) requestSeek(targetFrame int64) {
	if targetFrame < 0 {
		targetFrame = 0
	}
	if s.durationFrames > 0 && targetFrame > s.durationFrames {
		targetFrame = s.durationFrames
	}
	s.seekTargetFrame.Store(targetFrame)
	s.seekPending.Store(true)
}

// performSeek applies a pending seek. Audio-thread only: it touches the
// raw streamer, rebuilds the resampler (its internal phase is invalid
// across a discontinuity), and clears the ring buffer of now-stale
// decoded audio.
func (s *Sound) performSeek() {
	target := s.seekTargetFrame.Load()
	srcFrame := s.startSkipFrames + target
	if s.target.SampleRate > 0 {
		srcFrame = s.startSkipFrames + target*int64(s.source.SampleRate)/int64(s.target.SampleRate)
	}
	_ = s.raw.Seek(int(srcFrame))
	s.resampled = resampleIfNeeded(s.raw, beep.SampleRate(s.source.SampleRate), beep.SampleRate(s.target.SampleRate))
	s.ring.Clear()
	s.cursorFrames.Store(target)
	s.seekPending.Store(false)
	s.eof.Store(false)
}

// decodeFrames pulls the next batch of stereo frames from the resampled
// stream into buf, returning how many were filled and whether the
// stream has more to give.
func (s *Sound) decodeFrames(buf [][2]float64) (n int, ok bool) {
	return s.resampled.Stream(buf)
}
