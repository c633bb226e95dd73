package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/voicetyped/chunkscribe/internal/rpc"
)

func newWatchCmd(a *app) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "watch JOB_ID",
		Short: "Stream progress of a job running on a chunkscribed server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = a.cfg.ServerURL
			}
			client := rpc.NewClient(http.DefaultClient, server)
			out := cmd.OutOrStdout()

			var last *rpc.Job
			err := client.WatchJob(cmd.Context(), args[0], func(ev *rpc.JobEvent) error {
				switch {
				case ev.Type == rpc.SnapshotEvent:
					last = ev.Job
					fmt.Fprintf(out, "%s: %s (%d/%d chunks)\n", ev.Job.SourceName, ev.Job.Status, ev.Job.CompletedChunks, ev.Job.TotalChunks)
				default:
					if p, ok := ev.Progress(); ok {
						fmt.Fprintf(out, "%s %s %d/%d\n", ev.Timestamp.Format("15:04:05"), p.State, p.CurrentChunk, p.TotalChunks)
						return nil
					}
					fmt.Fprintf(out, "%s %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.Data)
				}
				return nil
			})
			if err != nil {
				return err
			}

			if last != nil && !last.Terminal() {
				job, err := client.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				last = job
			}
			if last != nil && last.Error != "" {
				fmt.Fprintf(out, "finished %s: %s\n", last.Status, last.Error)
			} else if last != nil {
				fmt.Fprintf(out, "finished %s\n", last.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "service base URL (default from CHUNKSCRIBE_SERVER_URL)")
	return cmd
}
