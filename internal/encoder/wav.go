package encoder

import (
	"bytes"
	"encoding/binary"
	"math"
)

const (
	wavHeaderBytes = 44
	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
)

// MimeWAV is the declared type of every encoded segment.
const MimeWAV = "audio/wav"

// WAV is the 16-bit PCM container. It implements chunker.Encoding.
type WAV struct{}

func (WAV) HeaderOverheadBytes() int64 { return wavHeaderBytes }

func (WAV) BytesPerSecond(sampleRate, channels int) int64 {
	return int64(sampleRate) * int64(channels) * bytesPerSample
}

// wavHeader is the canonical RIFF/WAVE header with a single fmt and data chunk.
type wavHeader struct {
	RIFF          [4]byte
	RIFFSize      uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func newWAVHeader(sampleRate, channels, dataSize int) wavHeader {
	return wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize:      uint32(wavHeaderBytes - 8 + dataSize),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bytesPerSample),
		BlockAlign:    uint16(channels * bytesPerSample),
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
}

// encodeWAV interleaves per-channel float samples as little-endian 16-bit PCM
// behind a 44-byte header.
func encodeWAV(sampleRate int, samples [][]float32) []byte {
	channels := len(samples)
	frames := 0
	if channels > 0 {
		frames = len(samples[0])
	}
	dataSize := frames * channels * bytesPerSample

	var buf bytes.Buffer
	buf.Grow(wavHeaderBytes + dataSize)
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, newWAVHeader(sampleRate, channels, dataSize))

	pcm := make([]byte, dataSize)
	off := 0
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(pcm[off:], uint16(toPCM16(samples[c][f])))
			off += bytesPerSample
		}
	}
	buf.Write(pcm)
	return buf.Bytes()
}

// toPCM16 clamps to [-1, 1] and scales by 32767, rounding to nearest.
func toPCM16(v float32) int16 {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return 0
	case f > 1:
		f = 1
	case f < -1:
		f = -1
	}
	return int16(math.Round(f * 32767))
}
