package audio

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/minimp3"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
	"github.com/pkg/errors"
	minimp3pkg "github.com/tosone/minimp3"
)

// containerKind is the sniffed container family a path decodes as. The
// core doesn't parse file contents to detect format — extension
// sniffing is the same shallow dispatch the teacher uses (SongType in
// beep_decoder.go), here derived from the path's file extension.
type containerKind uint8

const (
	containerUnknown containerKind = iota
	containerMP3
	containerFLAC
	containerOgg
	containerWAV
)

func sniffContainer(path string) containerKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return containerMP3
	case ".flac":
		return containerFLAC
	case ".ogg", ".oga":
		return containerOgg
	case ".wav":
		return containerWAV
	default:
		return containerUnknown
	}
}

// decodeStream opens the demuxer+decoder for one container, mirroring
// internal/player/beep_decoder.go's DecodeSong dispatch generalized to a
// containerKind switch instead of a hardcoded SongType, with an
// alternate low-footprint minimp3 path that MP3s take when
// preferMiniMP3 is set (it is not used as a fallback on mp3 errors).
func decodeStream(kind containerKind, r io.ReadSeekCloser, preferMiniMP3 bool) (beep.StreamSeekCloser, beep.Format, error) {
	switch kind {
	case containerMP3:
		if preferMiniMP3 {
			minimp3pkg.BufferSize = 1024 * 50
			s, f, err := minimp3.Decode(r)
			return s, f, errors.Wrap(err, "decode mp3 (minimp3)")
		}
		s, f, err := mp3.Decode(r)
		return s, f, errors.Wrap(err, "decode mp3")
	case containerFLAC:
		s, f, err := flac.Decode(r)
		return s, f, errors.Wrap(err, "decode flac")
	case containerOgg:
		s, f, err := vorbis.Decode(r)
		return s, f, errors.Wrap(err, "decode ogg/vorbis")
	case containerWAV:
		s, f, err := wav.Decode(r)
		return s, f, errors.Wrap(err, "decode wav")
	default:
		return nil, beep.Format{}, ErrUnsupportedCodec
	}
}
