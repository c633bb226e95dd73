package chunker

import "fmt"

// Defaults for the configuration surface.
const (
	DefaultTargetDurationSeconds = 600
	DefaultMaxChunkBytes         = 25 * 1024 * 1024

	// MinDurationSeconds is the shortest segment the segmenter produces,
	// whatever the byte budget suggests.
	MinDurationSeconds = 5

	// sizeSafetyMargin absorbs rounding in the encoder.
	sizeSafetyMargin = 0.95
)

// Config controls how audio is split.
type Config struct {
	// TargetDurationSeconds is the preferred segment length. The byte
	// budget wins when the two disagree.
	TargetDurationSeconds float64 `json:"chunk_duration_seconds" yaml:"chunk_duration_seconds"`
	// OverlapSeconds pulls each segment start backward without changing the
	// cadence.
	OverlapSeconds float64 `json:"overlap_seconds" yaml:"overlap_seconds"`
	// MaxChunkBytes is the hard per-request payload ceiling.
	MaxChunkBytes int64 `json:"max_chunk_size" yaml:"max_chunk_size"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		TargetDurationSeconds: DefaultTargetDurationSeconds,
		MaxChunkBytes:         DefaultMaxChunkBytes,
	}
}

// ConfigError reports a configuration the segmenter cannot honor.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("chunk config: %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
