package cli

import (
	"github.com/spf13/cobra"

	"github.com/freeeve/chessarchive/internal/rebuild"
	"github.com/freeeve/chessarchive/internal/repair"
	"github.com/freeeve/chessarchive/internal/syncer"
)

func (a *app) rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Back up the remote, then enrich and regenerate indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.locked(func() error {
				lookup, err := a.openLookup()
				if err != nil {
					return err
				}
				if a.cfg.Remote == "" {
					a.log.Warn().Msg("no remote configured, rebuilding from local chunks only")
					_, err := rebuild.Run(cmd.Context(), rebuild.Options{
						Layout:   a.layout,
						Capacity: a.cfg.ChunkSize,
						Lookup:   lookup,
						Logger:   a.log,
					})
					return err
				}
				store, err := a.openRemote(cmd.Context())
				if err != nil {
					return err
				}
				s := a.newSession(store, nil, false)
				if _, err := s.Backup(cmd.Context()); err != nil {
					return err
				}
				return s.Rebuild(cmd.Context(), a.rebuildFunc(lookup))
			})
		},
	}
}

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every remote artifact into backups/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.locked(func() error {
				store, err := a.openRemote(cmd.Context())
				if err != nil {
					return err
				}
				_, err = a.newSession(store, nil, false).Backup(cmd.Context())
				return err
			})
		},
	}
}

func (a *app) syncCmd() *cobra.Command {
	var yes, allowReslice bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Back up, rebuild, plan, confirm, and upload changed artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.locked(func() error {
				ctx := cmd.Context()
				lookup, err := a.openLookup()
				if err != nil {
					return err
				}
				store, err := a.openRemote(ctx)
				if err != nil {
					return err
				}

				var confirm syncer.Confirmer = syncer.Prompt{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
				if yes {
					confirm = syncer.AutoConfirm{}
				}
				s := a.newSession(store, confirm, allowReslice)
				if _, err := s.Backup(ctx); err != nil {
					return err
				}
				if err := s.Rebuild(ctx, a.rebuildFunc(lookup)); err != nil {
					return err
				}
				plan, err := s.Plan(ctx)
				if err != nil {
					return err
				}
				syncer.Report(cmd.OutOrStdout(), plan)
				_, err = s.Apply(ctx)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "upload without asking")
	cmd.Flags().BoolVar(&allowReslice, "allow-reslice", false, "publish chunks rewritten by repair")
	return cmd
}

func (a *app) repairCmd() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "repair --confirm-reslice",
		Short: "Drop duplicates and re-slice every chunk (changes chunk membership)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.locked(func() error {
				_, err := repair.Run(cmd.Context(), repair.Options{
					Layout:    a.layout,
					Capacity:  a.cfg.ChunkSize,
					Confirmed: confirmed,
					Logger:    a.log,
				})
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm-reslice", false, "confirm the one-time re-slice")
	return cmd
}
