package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
)

func newBackendsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backends [NAME...]",
		Short: "List transcription backends and their models",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, settings := a.cfg.BackendSettings(profiles.Profile{})
			infos, err := transcribe.Describe(transcribe.Backends, settings, args...)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTATUS\tDEFAULT MODEL\tMODELS")
			for _, info := range infos {
				name := info.Name
				if name == a.cfg.Backend {
					name += " *"
				}
				status := "ready"
				switch {
				case !info.Configured:
					status = info.Error
				case !info.Authoritative:
					status = "ready (placeholder text)"
				}
				ids := make([]string, 0, len(info.Models))
				for _, m := range info.Models {
					ids = append(ids, m.ID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, status, info.DefaultModel(), strings.Join(ids, ","))
			}
			return tw.Flush()
		},
	}
}
