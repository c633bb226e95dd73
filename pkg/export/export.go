// Package export renders a merged transcript as plain text, SRT, WebVTT or
// JSON.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voicetyped/chunkscribe/pkg/transcript"
)

// Exporter renders transcripts. Now supplies the generation timestamp.
type Exporter struct {
	Now func() time.Time
}

// New returns an exporter stamped with the wall clock.
func New() *Exporter {
	return &Exporter{Now: time.Now}
}

// Render encodes outcome in format f and returns the bytes together with
// the suggested file name.
func (e *Exporter) Render(outcome *transcript.Outcome, sourceName string, f Format) ([]byte, string, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case TXT:
		data = e.renderText(outcome, sourceName)
	case SRT:
		data = renderSRT(outcome)
	case VTT:
		data = renderVTT(outcome)
	case JSON:
		data, err = e.renderJSON(outcome, sourceName)
	default:
		return nil, "", fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return nil, "", err
	}
	return data, Filename(sourceName, f), nil
}

func (e *Exporter) generated() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Exporter) renderText(o *transcript.Outcome, sourceName string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcript: %s\n", sourceName)
	fmt.Fprintf(&b, "Generated: %s\n", e.generated().Format(time.RFC1123))
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(o.TotalDuration))
	if o.Error != "" {
		fmt.Fprintf(&b, "Warning: %s, the transcript below is incomplete.\n", o.Error)
	}

	b.WriteString("\n")
	b.WriteString(o.FullText)
	b.WriteString("\n\n--- Chunks ---\n")
	for _, r := range o.Segments {
		fmt.Fprintf(&b, "\n[%s - %s] Chunk %d\n", FormatDuration(r.StartTime), FormatDuration(r.EndTime), r.ChunkIndex+1)
		if r.Failed() {
			fmt.Fprintf(&b, "Error: %s\n", r.Error)
			continue
		}
		b.WriteString(strings.TrimSpace(r.Text))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// renderSRT numbers cues from 1 over usable chunks only, so a failed chunk
// leaves no gap in the numbering.
func renderSRT(o *transcript.Outcome) []byte {
	var b bytes.Buffer
	n := 0
	for _, r := range o.Segments {
		if !r.Usable() {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", n, SRTTimestamp(r.StartTime), SRTTimestamp(r.EndTime), strings.TrimSpace(r.Text))
	}
	return b.Bytes()
}

func renderVTT(o *transcript.Outcome) []byte {
	var b bytes.Buffer
	b.WriteString("WEBVTT\n\n")
	for _, r := range o.Segments {
		if !r.Usable() {
			continue
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", VTTTimestamp(r.StartTime), VTTTimestamp(r.EndTime), strings.TrimSpace(r.Text))
	}
	return b.Bytes()
}

type jsonDocument struct {
	Metadata jsonMetadata `json:"metadata"`
	FullText string       `json:"fullText"`
	Chunks   []jsonChunk  `json:"chunks"`
}

type jsonMetadata struct {
	FileName      string  `json:"fileName"`
	Generated     string  `json:"generated"`
	TotalDuration float64 `json:"totalDuration"`
	Error         *string `json:"error"`
}

type jsonChunk struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
	Error     *string `json:"error"`
}

// renderJSON keeps every chunk, failed ones included, under its original
// index.
func (e *Exporter) renderJSON(o *transcript.Outcome, sourceName string) ([]byte, error) {
	doc := jsonDocument{
		Metadata: jsonMetadata{
			FileName:      sourceName,
			Generated:     e.generated().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			TotalDuration: o.TotalDuration,
			Error:         optional(o.Error),
		},
		FullText: o.FullText,
		Chunks:   make([]jsonChunk, 0, len(o.Segments)),
	}
	for _, r := range o.Segments {
		doc.Chunks = append(doc.Chunks, jsonChunk{
			Index:     r.ChunkIndex,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			Text:      r.Text,
			Error:     optional(r.Error),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return append(data, '\n'), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
