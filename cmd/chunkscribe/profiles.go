package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voicetyped/chunkscribe/internal/profiles"
)

func newProfilesCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List chunking profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.ProfileDir
			}
			loader := profiles.NewLoader(dir)
			if _, err := loader.LoadAll(); err != nil {
				return err
			}

			base := a.cfg.Chunking()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBACKEND\tDURATION\tOVERLAP\tMAX BYTES\tDESCRIPTION")
			for _, p := range loader.List() {
				c := p.Chunking(base)
				backend := p.Backend
				if backend == "" {
					backend = a.cfg.Backend
				}
				fmt.Fprintf(tw, "%s\t%s\t%.0fs\t%.0fs\t%d\t%s\n", p.Name, backend, c.TargetDurationSeconds, c.OverlapSeconds, c.MaxChunkBytes, p.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "profile directory (default from CHUNKSCRIBE_PROFILE_DIR)")
	return cmd
}
