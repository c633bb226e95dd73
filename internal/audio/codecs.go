package audio

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(blob []byte) (*RawAudio, error) {
	dec := wav.NewDecoder(bytes.NewReader(blob))
	if !dec.IsValidFile() {
		return nil, decodeErr(MimeWAV, "invalid WAV container", dec.Err())
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, decodeErrf(MimeWAV, "unsupported WAV sample format %d", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, decodeErr(MimeWAV, "read PCM data", err)
	}
	return fromIntBuffer(buf)
}

func fromIntBuffer(buf *goaudio.IntBuffer) (*RawAudio, error) {
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, decodeErrf(MimeWAV, "missing PCM format")
	}

	scale := intScale(buf.SourceBitDepth)
	channels := deinterleave(buf.Data, buf.Format.NumChannels, scale)
	raw, err := NewRawAudio(buf.Format.SampleRate, channels)
	if err != nil {
		return nil, decodeErr(MimeWAV, "invalid PCM layout", err)
	}
	return raw, nil
}

// intScale maps integer PCM of the given bit depth to [-1, 1].
// 8-bit WAV samples are unsigned.
func intScale(bitDepth int) func(int) float32 {
	if bitDepth == 8 {
		return func(v int) float32 { return float32(v-128) / 128 }
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	full := float32(int64(1) << (bitDepth - 1))
	return func(v int) float32 { return float32(v) / full }
}

// decodeMP3 decodes an MPEG layer 3 stream. The decoder always yields 16-bit
// little-endian stereo frames, so the result has two channels.
func decodeMP3(blob []byte) (*RawAudio, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(blob))
	if err != nil {
		return nil, decodeErr(MimeMP3, "open stream", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, decodeErr(MimeMP3, "read frames", err)
	}

	const channels = 2
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	out := deinterleave(samples, channels, func(v int16) float32 { return float32(v) / 32768 })
	raw, err := NewRawAudio(dec.SampleRate(), out)
	if err != nil {
		return nil, decodeErr(MimeMP3, "invalid PCM layout", err)
	}
	return raw, nil
}

func decodeOgg(blob []byte) (*RawAudio, error) {
	data, format, err := oggvorbis.ReadAll(bytes.NewReader(blob))
	if err != nil {
		return nil, decodeErr(MimeOGG, "read vorbis stream", err)
	}
	if format.Channels < 1 {
		return nil, decodeErr(MimeOGG, "invalid vorbis header", fmt.Errorf("%d channels", format.Channels))
	}
	out := deinterleave(data, format.Channels, clampFloat)
	raw, err := NewRawAudio(format.SampleRate, out)
	if err != nil {
		return nil, decodeErr(MimeOGG, "invalid PCM layout", err)
	}
	return raw, nil
}

func clampFloat(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
