package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voicetyped/chunkscribe/internal/audio"
	"github.com/voicetyped/chunkscribe/internal/chunker"
	"github.com/voicetyped/chunkscribe/internal/encoder"
	"github.com/voicetyped/chunkscribe/pkg/export"
)

func newPlanCmd(a *app) *cobra.Command {
	var profileName string
	cmd := &cobra.Command{
		Use:   "plan FILE",
		Short: "Print the chunk boundaries a file would be split into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := resolveProfile(a, profileName)
			if err != nil {
				return err
			}
			cfg := profile.Chunking(a.cfg.Chunking())

			blob, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			mimeType := audio.Sniff(blob, mime.TypeByExtension(filepath.Ext(args[0])))
			raw, err := a.cfg.Decoder().Decode(cmd.Context(), blob, mimeType)
			if err != nil {
				return err
			}

			seg := chunker.New(encoder.WAV{})
			bounds, err := seg.Plan(raw.DurationSeconds, raw.SampleRate, raw.Channels, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s, %d Hz, %d channel(s), chunk length %.0f s\n\n",
				filepath.Base(args[0]), export.FormatDuration(raw.DurationSeconds), raw.SampleRate, raw.Channels,
				seg.EffectiveDuration(raw.SampleRate, raw.Channels, cfg))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHUNK\tSTART\tEND\tEST. BYTES")
			for _, b := range bounds {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", b.Index+1, export.VTTTimestamp(b.StartTime), export.VTTTimestamp(b.EndTime), b.EstimatedBytes)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&profileName, "profile", "", "chunking profile name")
	return cmd
}
