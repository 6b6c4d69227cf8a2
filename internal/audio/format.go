package audio

// SampleFormat names the PCM sample representation negotiated with a
// device. The engine only ever produces Float32 internally; Int16 is
// named here because it is what a backend may fall back to reporting
// in BackendInfo.PCMFormat when float32 isn't available.
type SampleFormat uint8

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatFloat32
	SampleFormatInt16
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatFloat32:
		return "float32"
	case SampleFormatInt16:
		return "int16"
	default:
		return "unknown"
	}
}

// ChannelLayout is informational only; beep's streamer model already
// normalizes every decoded stream to stereo frames, so this never
// drives decode-time channel handling.
type ChannelLayout uint8

const (
	ChannelLayoutUnknown ChannelLayout = iota
	ChannelLayoutMono
	ChannelLayoutStereo
)

func layoutFor(channels int) ChannelLayout {
	switch channels {
	case 1:
		return ChannelLayoutMono
	case 2:
		return ChannelLayoutStereo
	default:
		return ChannelLayoutUnknown
	}
}

// Format describes a PCM stream's rate, channel count, sample
// representation, and layout. Sound carries one as its source (what the
// file contains) and one as its target (what the negotiated device
// wants); the engine resamples between them.
type Format struct {
	SampleRate int
	Channels   int
	SampleFmt  SampleFormat
	Layout     ChannelLayout
}
