package audio

import (
	"bytes"
	"math"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ContainerInfo summarizes an MP4-family file before its audio is extracted.
type ContainerInfo struct {
	DurationSeconds float64
	AudioTracks     int
	VideoTracks     int
}

// ProbeContainer parses the movie header of an MP4/M4A/MOV blob. It fails
// with a DecodeError when the file has no sound track. A zero duration means
// the header did not carry one (fragmented files); extraction decides then.
func ProbeContainer(blob []byte, mimeType string) (ContainerInfo, error) {
	f, err := mp4.DecodeFile(bytes.NewReader(blob))
	if err != nil {
		return ContainerInfo{}, decodeErr(mimeType, "parse container", err)
	}
	if f.Moov == nil {
		return ContainerInfo{}, decodeErrf(mimeType, "container has no movie box")
	}

	var info ContainerInfo
	for _, trak := range f.Moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
			continue
		}
		switch trak.Mdia.Hdlr.HandlerType {
		case "soun":
			info.AudioTracks++
		case "vide":
			info.VideoTracks++
		}
	}
	if info.AudioTracks == 0 {
		return info, decodeErrf(mimeType, "container has no audio track")
	}

	if mvhd := f.Moov.Mvhd; mvhd != nil && mvhd.Timescale > 0 {
		info.DurationSeconds = float64(mvhd.Duration) / float64(mvhd.Timescale)
	}
	if math.IsNaN(info.DurationSeconds) || math.IsInf(info.DurationSeconds, 0) || info.DurationSeconds < 0 {
		return info, decodeErrf(mimeType, "container reports invalid duration")
	}
	return info, nil
}
