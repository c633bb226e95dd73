package audio

import (
	"context"
	"log/slog"
	"math"
)

// Decoder turns media blobs into RawAudio. WAV, MP3 and Ogg Vorbis are
// decoded in process; other audio and all video containers go through the
// extractor first.
type Decoder struct {
	extractor Extractor
}

// NewDecoder creates a decoder. A nil extractor limits input to the formats
// decoded in process.
func NewDecoder(extractor Extractor) *Decoder {
	return &Decoder{extractor: extractor}
}

// Decode resolves the media type of blob and decodes it.
func (d *Decoder) Decode(ctx context.Context, blob []byte, mimeType string) (*RawAudio, error) {
	if len(blob) == 0 {
		return nil, decodeErrf(mimeType, "empty input")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind := Sniff(blob, mimeType)
	slog.DebugContext(ctx, "decoding media",
		slog.String("declared", mimeType),
		slog.String("detected", kind),
		slog.Int("bytes", len(blob)),
	)

	switch {
	case kind == MimeWAV:
		return decodeWAV(blob)
	case kind == MimeMP3:
		return decodeMP3(blob)
	case kind == MimeOGG:
		raw, err := decodeOgg(blob)
		if err == nil || d.extractor == nil {
			return raw, err
		}
		// Opus and FLAC in Ogg are not Vorbis.
		slog.DebugContext(ctx, "vorbis decode failed, extracting", slog.String("error", err.Error()))
		return d.extract(ctx, blob, kind)
	case isISOBMFF(kind):
		info, err := ProbeContainer(blob, kind)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "probed container",
			slog.Float64("duration_seconds", info.DurationSeconds),
			slog.Int("audio_tracks", info.AudioTracks),
			slog.Int("video_tracks", info.VideoTracks),
		)
		return d.extract(ctx, blob, kind)
	case isMedia(kind):
		return d.extract(ctx, blob, kind)
	}
	return nil, decodeErrf(kind, "unsupported media type")
}

func (d *Decoder) extract(ctx context.Context, blob []byte, kind string) (*RawAudio, error) {
	if d.extractor == nil {
		return nil, decodeErrf(kind, "no audio extractor configured")
	}
	wavBlob, err := d.extractor.ExtractAudio(ctx, blob, kind)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, decodeErr(kind, "extract audio", err)
	}
	raw, err := decodeWAV(wavBlob)
	if err != nil {
		return nil, decodeErr(kind, "decode extracted audio", err)
	}
	if raw.DurationSeconds <= 0 || math.IsInf(raw.DurationSeconds, 0) {
		return nil, decodeErrf(kind, "extracted audio has no playable duration")
	}
	return raw, nil
}
