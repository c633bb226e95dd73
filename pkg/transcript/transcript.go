// Package transcript holds the per-chunk results of a transcription run and
// merges them into a single ordered transcript.
package transcript

import (
	"cmp"
	"errors"
	"slices"
	"strings"
)

// ErrSomeChunksFailed is the aggregate marker set when at least one chunk
// failed. Callers inspect the individual results for details.
var ErrSomeChunksFailed = errors.New("some chunks failed")

// SegmentResult is the outcome of submitting one chunk.
type SegmentResult struct {
	ChunkIndex int     `json:"chunk_index"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Text       string  `json:"text"`
	Error      string  `json:"error,omitempty"`
}

// Failed reports whether the chunk ended in an error after retries.
func (r SegmentResult) Failed() bool { return r.Error != "" }

// Usable reports whether the chunk contributes text to the transcript.
func (r SegmentResult) Usable() bool {
	return !r.Failed() && strings.TrimSpace(r.Text) != ""
}

// Outcome is the merged product of a run.
type Outcome struct {
	FullText      string          `json:"full_text"`
	Segments      []SegmentResult `json:"segments"`
	TotalDuration float64         `json:"total_duration"`
	Error         string          `json:"error,omitempty"`
}

// Err returns ErrSomeChunksFailed when the outcome carries the marker.
func (o *Outcome) Err() error {
	if o.Error == "" {
		return nil
	}
	return ErrSomeChunksFailed
}

// Failed returns the results that carry an error.
func (o *Outcome) Failed() []SegmentResult {
	var out []SegmentResult
	for _, r := range o.Segments {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Merge orders results by chunk index and builds the outcome. Failed and
// empty chunks are left out of the full text but kept in Segments.
func Merge(results []SegmentResult) Outcome {
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b SegmentResult) int {
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})

	out := Outcome{Segments: ordered}
	texts := make([]string, 0, len(ordered))
	for _, r := range ordered {
		out.TotalDuration = max(out.TotalDuration, r.EndTime)
		if r.Failed() {
			out.Error = ErrSomeChunksFailed.Error()
			continue
		}
		if text := strings.TrimSpace(r.Text); text != "" {
			texts = append(texts, text)
		}
	}
	out.FullText = strings.Join(texts, " ")
	if out.Segments == nil {
		out.Segments = []SegmentResult{}
	}
	return out
}
