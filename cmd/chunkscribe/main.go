package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chunkconfig "github.com/voicetyped/chunkscribe/config"

	// Register transcription backends via init().
	_ "github.com/voicetyped/chunkscribe/internal/transcribe/backends/deepgram"
	_ "github.com/voicetyped/chunkscribe/internal/transcribe/backends/httpapi"
	_ "github.com/voicetyped/chunkscribe/internal/transcribe/backends/openai"
	_ "github.com/voicetyped/chunkscribe/internal/transcribe/backends/placeholder"
)

// app carries the configuration shared by all subcommands.
type app struct {
	envFile string
	cfg     chunkconfig.CLIConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "chunkscribe",
		Short:         "Split long recordings into chunks and transcribe them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := chunkconfig.LoadCLI(a.envFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file read before the environment")

	root.AddCommand(
		newTranscribeCmd(a),
		newPlanCmd(a),
		newProfilesCmd(a),
		newWatchCmd(a),
		newBackendsCmd(a),
	)
	return root
}
