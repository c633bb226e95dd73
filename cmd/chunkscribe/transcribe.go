package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voicetyped/chunkscribe/internal/audio"
	"github.com/voicetyped/chunkscribe/internal/orchestrator"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/pkg/export"
	"github.com/voicetyped/chunkscribe/pkg/transcript"
)

type transcribeFlags struct {
	profile       string
	format        string
	outDir        string
	chunkDuration float64
	overlap       float64
	maxChunkSize  int64
}

func newTranscribeCmd(a *app) *cobra.Command {
	var f transcribeFlags
	cmd := &cobra.Command{
		Use:   "transcribe FILE...",
		Short: "Transcribe audio or video files and write transcript exports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formats, err := parseFormats(f.format)
			if err != nil {
				return err
			}
			profile, err := resolveProfile(a, f.profile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("out") {
				a.cfg.OutputDir = f.outDir
			}

			ocfg := a.cfg.Orchestrator()
			ocfg.Chunking = profile.Chunking(ocfg.Chunking)
			if cmd.Flags().Changed("chunk-duration") {
				ocfg.Chunking.TargetDurationSeconds = f.chunkDuration
			}
			if cmd.Flags().Changed("overlap") {
				ocfg.Chunking.OverlapSeconds = f.overlap
			}
			if cmd.Flags().Changed("max-chunk-size") {
				ocfg.Chunking.MaxChunkBytes = f.maxChunkSize
			}

			backend, err := a.cfg.NewBackend(profile)
			if err != nil {
				return err
			}
			if !backend.Authoritative() {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: no API key configured, producing placeholder transcripts")
			}
			orch := orchestrator.New(backend, a.cfg.Decoder(), ocfg)

			var failed []string
			for _, path := range args {
				err := transcribeFile(cmd.Context(), orch, path, formats, a.cfg.OutputDir, cmd.ErrOrStderr())
				if errors.Is(err, context.Canceled) {
					return err
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed = append(failed, path)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d files failed", len(failed), len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.profile, "profile", "", "chunking profile name")
	cmd.Flags().StringVar(&f.format, "format", "txt", "export format: txt, srt, vtt, json or all")
	cmd.Flags().StringVar(&f.outDir, "out", "", "output directory (default from CHUNKSCRIBE_OUTPUT_DIR)")
	cmd.Flags().Float64Var(&f.chunkDuration, "chunk-duration", 0, "target chunk duration in seconds")
	cmd.Flags().Float64Var(&f.overlap, "overlap", 0, "chunk overlap in seconds")
	cmd.Flags().Int64Var(&f.maxChunkSize, "max-chunk-size", 0, "maximum encoded chunk size in bytes")
	return cmd
}

func transcribeFile(ctx context.Context, orch *orchestrator.Orchestrator, path string, formats []export.Format, outDir string, progress io.Writer) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	mimeType := audio.Sniff(blob, mime.TypeByExtension(filepath.Ext(path)))

	outcome, runErr := orch.Run(ctx, blob, mimeType, func(p orchestrator.Progress) {
		switch p.State {
		case orchestrator.StateSubmitting:
			if p.CurrentChunk > 0 {
				last := p.Chunks[len(p.Chunks)-1]
				status := "ok"
				if last.Failed() {
					status = "failed: " + last.Error
				}
				fmt.Fprintf(progress, "[%s] chunk %d/%d (%s - %s) %s\n", name, p.CurrentChunk, p.TotalChunks,
					export.VTTTimestamp(last.StartTime), export.VTTTimestamp(last.EndTime), status)
				return
			}
			fmt.Fprintf(progress, "[%s] submitting %d chunks\n", name, p.TotalChunks)
		default:
			fmt.Fprintf(progress, "[%s] %s\n", name, p.State)
		}
	})
	if outcome == nil {
		return runErr
	}
	if err := writeExports(outcome, name, formats, outDir, progress); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if outcome.Err() != nil {
		fmt.Fprintf(progress, "[%s] %d chunks failed, transcript is incomplete\n", name, len(outcome.Failed()))
	}
	return nil
}

func writeExports(outcome *transcript.Outcome, sourceName string, formats []export.Format, outDir string, progress io.Writer) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	exp := export.New()
	for _, f := range formats {
		data, filename, err := exp.Render(outcome, sourceName, f)
		if err != nil {
			return err
		}
		target := filepath.Join(outDir, filename)
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(progress, "[%s] wrote %s\n", sourceName, target)
	}
	return nil
}

func parseFormats(s string) ([]export.Format, error) {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return export.Formats, nil
	}
	var out []export.Format
	for _, part := range strings.Split(s, ",") {
		f, err := export.ParseFormat(part)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func resolveProfile(a *app, name string) (profiles.Profile, error) {
	loader := profiles.NewLoader(a.cfg.ProfileDir)
	if name == "" || name == profiles.DefaultName {
		p, _ := loader.Get(profiles.DefaultName)
		return p, nil
	}
	if _, err := loader.LoadAll(); err != nil {
		return profiles.Profile{}, err
	}
	p, ok := loader.Get(name)
	if !ok {
		return profiles.Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}
