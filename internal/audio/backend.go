package audio

// Device describes one enumerated playback device.
//
// CardIndex/DeviceIndex are the closest faithful mapping a backend can
// give onto the original ALSA card/device numbering scheme: PortAudio
// doesn't expose it directly, so the concrete backend leaves CardIndex
// at 0 and sets DeviceIndex to the device's PortAudio index (its
// position in portaudio.Devices()); /proc/asound is not parsed.
type Device struct {
	Name        string
	Description string
	CardIndex   int
	DeviceIndex int
	IsDefault   bool
}

// BackendInfo is a point-in-time snapshot of a backend's negotiated
// stream parameters and live counters.
type BackendInfo struct {
	Device Device

	SampleRate int
	Channels   int
	PCMFormat  string

	PeriodFrames int
	BufferFrames int

	LatencyMs float64

	IsActive   bool
	IsPlaying  bool
	IsPaused   bool
	IsDraining bool

	Xruns      uint64
	WriteCalls uint64
}

// Backend is the abstract device-driver contract. Exactly one concrete
// implementation is linked per build target (PortAudioBackend here); it
// is never chosen at runtime from a registry of alternatives — see the
// design note against dynamic backend dispatch carried over from the
// original engine design.
type Backend interface {
	// EnumerateDevices lists playback-capable devices. Safe to call
	// before InitForDevice.
	EnumerateDevices() ([]Device, error)

	// InitForDevice opens and starts a stream on the named device
	// ("" or "default" selects the host default). Calling it again
	// re-negotiates against a different device.
	InitForDevice(name string) error

	// Write pushes one period's worth of interleaved samples (already
	// volume-scaled) to the device, blocking until consumed. It never
	// returns a fatal error for a recoverable xrun — those are counted
	// internally and surfaced through Info().
	Write(interleaved []float32) (framesWritten int, err error)

	// Info returns a snapshot of the current stream's negotiated
	// parameters and live counters.
	Info() BackendInfo

	// Close stops the stream and releases the device. Idempotent.
	Close() error
}
