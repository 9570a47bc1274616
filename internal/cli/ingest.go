package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freeeve/chessarchive/internal/ingest"
	"github.com/freeeve/chessarchive/internal/source"
)

func (a *app) ingestConfig() ingest.Config {
	sources := make([]ingest.Source, len(a.cfg.Sources))
	for i, s := range a.cfg.Sources {
		sources[i] = ingest.Source{Name: s.Name, Files: s.Files}
	}
	return ingest.Config{
		Sources:          sources,
		RatingMin:        a.cfg.RatingMin,
		Delay:            a.cfg.Fetch.Delay,
		CheckpointEvery:  a.cfg.Fetch.CheckpointEvery,
		ProbeConcurrency: a.cfg.Fetch.ProbeConcurrency,
		Logger:           a.log,
	}
}

func (a *app) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Probe sources, fetch changed files, and admit their games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(a.cfg.Sources) == 0 {
				return fmt.Errorf("no sources configured")
			}
			return a.locked(func() error {
				st, err := a.openIngestState()
				if err != nil {
					return err
				}
				client := source.New(source.Config{
					Timeout:    a.cfg.Fetch.Timeout,
					UserAgent:  a.cfg.Fetch.UserAgent,
					MaxRetries: a.cfg.Fetch.MaxRetries,
				})
				_, err = ingest.NewWorker(a.ingestConfig(), client, st).Fetch(cmd.Context())
				return err
			})
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "import --pgn <file>...",
		Short: "Admit games from local .pgn or .pgn.zst files",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := append(files, args...)
			if len(paths) == 0 {
				return fmt.Errorf("no input files, pass --pgn")
			}
			return a.locked(func() error {
				st, err := a.openIngestState()
				if err != nil {
					return err
				}
				_, err = ingest.NewWorker(a.ingestConfig(), nil, st).ImportFiles(cmd.Context(), paths)
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&files, "pgn", nil, "PGN file to import (repeatable)")
	return cmd
}
