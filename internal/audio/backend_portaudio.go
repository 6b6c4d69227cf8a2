package audio

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
)

const targetLatencyMs = 40.0

// PortAudioBackend is the concrete Backend implementation, grounded on
// Alexander-D-Karpov-amp/cmd/audio/test.go's use of gordonklaus/portaudio
// as a blocking-mode float32 output stream. PortAudio's own host-API
// abstraction already spans ALSA and PipeWire-via-ALSA-compat on Linux,
// so this single concrete satisfies the "must permit a second backend
// without an API change" requirement without a runtime backend registry.
type PortAudioBackend struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	outBuf  []float32
	channels int
	info    BackendInfo

	xruns  atomic.Uint64
	writes atomic.Uint64
}

// NewPortAudioBackend initializes the PortAudio host library. It does
// not yet open a device; call InitForDevice for that.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &ConfigError{Op: "portaudio.Initialize", Err: err}
	}
	return &PortAudioBackend{}, nil
}

func (b *PortAudioBackend) EnumerateDevices() ([]Device, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate playback devices")
	}
	defDev, _ := portaudio.DefaultOutputDevice()

	out := make([]Device, 0, len(devs))
	for _, d := range devs {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		desc := d.Name
		if d.HostApi != nil {
			desc = d.HostApi.Name + ": " + d.Name
		}
		out = append(out, Device{
			Name:        d.Name,
			Description: desc,
			CardIndex:   0, // PortAudio doesn't expose ALSA card numbers directly
			DeviceIndex: d.Index,
			IsDefault:   defDev != nil && d == defDev,
		})
	}
	return out, nil
}

func resolveOutputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		return portaudio.DefaultOutputDevice()
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, errors.Errorf("output device %q not found", name)
}

func framesForLatency(sampleRate, latencyMs float64) int {
	frames := int(sampleRate * latencyMs / 1000.0)
	if frames < 64 {
		frames = 64
	}
	return frames
}

// InitForDevice opens a blocking float32 output stream on the named
// device, preferring its reported default sample rate and a period size
// derived from a ≤40ms latency target. Re-entrant: calling it again
// tears down the previous stream first (device switch).
func (b *PortAudioBackend) InitForDevice(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream != nil {
		_ = b.stream.Close()
		b.stream = nil
	}

	dev, err := resolveOutputDevice(name)
	if err != nil {
		return &ConfigError{Op: "resolve output device", Err: err}
	}

	sampleRate := dev.DefaultSampleRate
	if sampleRate <= 0 {
		sampleRate = float64(DefaultSoundSampleRate)
	}
	channels := dev.MaxOutputChannels
	if channels > 2 {
		channels = 2
	}
	if channels < 1 {
		channels = DefaultSoundChannels
	}

	period := framesForLatency(sampleRate, targetLatencyMs)

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  time.Duration(targetLatencyMs * float64(time.Millisecond)),
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: period,
	}

	outBuf := make([]float32, period*channels)
	stream, err := portaudio.OpenStream(params, outBuf)
	if err != nil {
		return &ConfigError{Op: "open portaudio stream", Err: err}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return &ConfigError{Op: "start portaudio stream", Err: err}
	}

	b.stream = stream
	b.outBuf = outBuf
	b.channels = channels
	b.info = BackendInfo{
		Device: Device{
			Name:        dev.Name,
			Description: dev.Name,
			DeviceIndex: dev.Index,
			IsDefault:   true,
		},
		SampleRate:   int(sampleRate),
		Channels:     channels,
		PCMFormat:    SampleFormatFloat32.String(),
		PeriodFrames: period,
		BufferFrames: period * 4,
		LatencyMs:    targetLatencyMs,
		IsActive:     true,
	}
	return nil
}

// Write copies interleaved into the stream's bound output buffer
// (zero-padding any shortfall) and flushes it. Recoverable xruns are
// counted and swallowed; anything else propagates.
func (b *PortAudioBackend) Write(interleaved []float32) (int, error) {
	b.mu.Lock()
	stream := b.stream
	buf := b.outBuf
	channels := b.channels
	b.mu.Unlock()

	if stream == nil {
		return 0, errors.New("audio: backend not initialized")
	}

	n := copy(buf, interleaved)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}

	err := stream.Write()
	b.writes.Add(1)
	if err != nil {
		fatal := b.recoverWriteError(err)
		if fatal != nil {
			return 0, fatal
		}
		b.xruns.Add(1)
	}

	frames := n
	if channels > 0 {
		frames = n / channels
	}
	return frames, nil
}

// recoverWriteError classifies a Write error: a suspended stream is
// restarted, an underflow/overflow is swallowed (Write counts it as an
// xrun) and the write is not retried, anything else is fatal and
// propagated.
func (b *PortAudioBackend) recoverWriteError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "stream is stopped"), strings.Contains(msg, "stream stopped"):
		b.mu.Lock()
		stream := b.stream
		b.mu.Unlock()
		if stream == nil {
			return errors.Wrap(err, "device write on closed stream")
		}
		if serr := stream.Start(); serr != nil {
			return errors.Wrap(serr, "resume suspended device")
		}
		return nil
	case strings.Contains(msg, "underflow"), strings.Contains(msg, "overflow"):
		return nil
	default:
		return errors.Wrap(err, "device write")
	}
}

func (b *PortAudioBackend) Info() BackendInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	info := b.info
	info.Xruns = b.xruns.Load()
	info.WriteCalls = b.writes.Load()
	return info
}

// Close stops and closes the stream and terminates the PortAudio host
// library. Idempotent.
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return nil
	}
	err := b.stream.Close()
	b.stream = nil
	b.info.IsActive = false
	_ = portaudio.Terminate()
	return err
}
