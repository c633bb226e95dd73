package chunker

// Encoding describes the payload size of an encoded segment so durations can
// be derived from a byte budget without knowing the container.
type Encoding interface {
	HeaderOverheadBytes() int64
	BytesPerSecond(sampleRate, channels int) int64
}
